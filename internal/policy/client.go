package policy

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/mjhalvorsen/verified-control/go-shield/gen/policypb"
)

// #region client-struct
// Client wraps the gRPC connection to the policy service hosting the
// trained actor.
type Client struct {
	conn   *grpc.ClientConn
	client pb.PolicyServiceClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to the policy gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: pb.NewPolicyServiceClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service
// implementation. Used for testing without a real gRPC connection.
func NewClientWithService(svc pb.PolicyServiceClient) *Client {
	return &Client{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region act
// Act sends the current state to the policy service and returns its
// proposed action.
func (c *Client) Act(ctx context.Context, x *mat.VecDense) (*mat.VecDense, error) {
	state := make([]float64, x.Len())
	copy(state, x.RawVector().Data)

	resp, err := c.client.Act(ctx, &pb.ActRequest{State: state})
	if err != nil {
		return nil, fmt.Errorf("policy act: %w", err)
	}
	if len(resp.GetAction()) == 0 {
		return nil, fmt.Errorf("policy act: empty action for %d-dimensional state", x.Len())
	}
	return mat.NewVecDense(len(resp.GetAction()), resp.GetAction()), nil
}

// #endregion act
