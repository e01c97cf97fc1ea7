package shield

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/dynamics"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
	"github.com/mjhalvorsen/verified-control/go-shield/internal/synth"
)

// #region stack
// Stack is an ordered sequence of shield entries sharing one control
// horizon. Entries are read-only after construction, so concurrent readers
// need no locking; re-synthesis builds a new stack and swaps it in whole.
type Stack struct {
	entries     []Entry
	horizon     int
	policyFirst bool
}

// NewStack builds a stack over a private copy of the entry slice.
// policyFirst selects whether the policy's action is tried first; when
// false the verified gain is applied unconditionally.
func NewStack(entries []Entry, horizon int, policyFirst bool) (*Stack, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("shield: stack needs at least one entry")
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("shield: horizon %d must be positive", horizon)
	}
	return &Stack{
		entries:     append([]Entry(nil), entries...),
		horizon:     horizon,
		policyFirst: policyFirst,
	}, nil
}

// Len returns the number of entries.
func (s *Stack) Len() int { return len(s.entries) }

// Horizon returns the shared control horizon.
func (s *Stack) Horizon() int { return s.horizon }

// PolicyFirst reports whether the policy's proposal is tried before the
// verified gain.
func (s *Stack) PolicyFirst() bool { return s.policyFirst }

// Entries returns a copy of the entry sequence for instrumentation.
func (s *Stack) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Resolve returns the first entry, in order, whose cover box contains x.
// A miss is a hard safety violation surfaced as ErrNoCover.
func (s *Stack) Resolve(x *mat.VecDense) (Entry, int, error) {
	for i, e := range s.entries {
		if e.Cover.Contains(x) {
			return e, i, nil
		}
	}
	return Entry{}, -1, fmt.Errorf("%w: state %v misses all %d covers",
		ErrNoCover, mat.Formatted(x.T()), len(s.entries))
}

// #endregion stack

// #region construction

// BuildEntry runs gain synthesis followed by invariant construction for one
// shield layer over the environment's current initial box.
func BuildEntry(env *dynamics.Environment, sOpts synth.Options, iOpts invariant.BuildOptions) (Entry, error) {
	k, err := synth.Search(env, sOpts)
	if err != nil {
		return Entry{}, fmt.Errorf("shield: gain synthesis: %w", err)
	}
	poly, cover, err := invariant.Build(env, k, iOpts)
	if err != nil {
		return Entry{}, fmt.Errorf("shield: invariant construction: %w", err)
	}
	return Entry{K: k, Inv: poly, Cover: cover}, nil
}

// NewLayeredStack synthesizes count nested entries. Layer zero covers the
// nominal initial box; each further layer re-runs synthesis over the
// residual region outside the previous cover, widened toward the safety
// box, producing an outer, looser shield that catches states the policy
// pushes outside the tighter verified regions.
func NewLayeredStack(env *dynamics.Environment, count, horizon int, policyFirst bool, sOpts synth.Options, iOpts invariant.BuildOptions) (*Stack, error) {
	if count <= 0 {
		return nil, fmt.Errorf("shield: layer count %d must be positive", count)
	}

	entries := make([]Entry, 0, count)
	layerEnv := env
	for layer := 0; layer < count; layer++ {
		lOpts := sOpts
		lOpts.Seed = sOpts.Seed + int64(layer)*104729
		entry, err := BuildEntry(layerEnv, lOpts, iOpts)
		if err != nil {
			return nil, fmt.Errorf("shield: layer %d: %w", layer, err)
		}
		entries = append(entries, entry)

		if layer+1 < count {
			next, err := env.WithInitialBox(residualBox(entry.Cover, env.SafetyBox()))
			if err != nil {
				return nil, err
			}
			layerEnv = next
		}
	}
	return NewStack(entries, horizon, policyFirst)
}

// residualBox widens a cover toward the safety bounds so the next layer's
// synthesis exercises the region the previous invariant left uncovered.
func residualBox(cover invariant.Cover, safe dynamics.Box) dynamics.Box {
	n := cover.Lower.Len()
	min := mat.NewVecDense(n, nil)
	max := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		lo := 2 * cover.Lower.AtVec(i)
		if s := safe.Min.AtVec(i); lo < s {
			lo = s
		}
		hi := 2 * cover.Upper.AtVec(i)
		if s := safe.Max.AtVec(i); hi > s {
			hi = s
		}
		min.SetVec(i, lo)
		max.SetVec(i, hi)
	}
	return dynamics.Box{Min: min, Max: max}
}

// #endregion construction
