package shield

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/mjhalvorsen/verified-control/go-shield/internal/invariant"
)

// ErrNoCover reports a runtime state outside every cover box in the stack.
// Fatal for the current episode: the caller must surface it as a safety
// violation, never clamp it away.
var ErrNoCover = errors.New("shield: state outside every cover box")

// #region mode
// Mode tags who chose the action for a control step. An explicit tag rather
// than a boolean so training-time bookkeeping of policy-chosen versus
// shield-chosen steps stays auditable.
type Mode int

const (
	ModePolicy Mode = iota
	ModeShield
)

// String returns the bookkeeping label for the mode.
func (m Mode) String() string {
	switch m {
	case ModePolicy:
		return "policy"
	case ModeShield:
		return "shield"
	default:
		return "unknown"
	}
}

// #endregion mode

// #region entry
// Entry is one (gain, invariant, cover) triple. Entries are created during
// the offline synthesis phase and immutable afterward; later entries in a
// stack are nested fallback shields.
type Entry struct {
	K     *mat.Dense
	Inv   invariant.Polytope
	Cover invariant.Cover
}

// #endregion entry

// #region decision
// Decision is the outcome of one runtime dispatch.
type Decision struct {
	U          *mat.VecDense
	Mode       Mode
	EntryIndex int
	Reason     string
}

// #endregion decision
