package orchestrator

import (
	"errors"
	"fmt"
	"reflect"

	"shieldedamm/internal/fixedpoint"
	"shieldedamm/internal/ledger"
	"shieldedamm/internal/txerr"
)

// OpError is returned by every operation. State is the stage the pipeline
// was in when it failed; the underlying typed error is reachable through
// errors.As.
type OpError struct {
	OpID  string
	Kind  ledger.Kind
	State State
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s failed in %s: %v", e.Kind, e.OpID, e.State, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// StateOf returns the failing state of an operation error, or "" if err did
// not come from an operation.
func StateOf(err error) State {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.State
	}
	return ""
}

func precondition(kind ledger.Kind, reason string, err error) error {
	return &txerr.PreconditionError{Op: string(kind), Reason: reason, Err: err}
}

// errorType names the most specific typed error in err's chain, for metrics.
func errorType(err error) string {
	typed := []interface{}{
		new(*txerr.PreconditionError),
		new(*txerr.SyncError),
		new(*txerr.LegacyCommitmentError),
		new(*txerr.DataMismatchError),
		new(*txerr.ProofTimeoutError),
		new(*txerr.ProofFormatError),
		new(*txerr.ChainRejectionError),
		new(*fixedpoint.ArithmeticError),
		new(*fixedpoint.PriceMoveError),
	}
	for _, target := range typed {
		if errors.As(err, target) {
			return reflect.TypeOf(target).Elem().Elem().Name()
		}
	}
	var oe *OpError
	if errors.As(err, &oe) && oe.Err != nil {
		return reflect.TypeOf(oe.Err).String()
	}
	return reflect.TypeOf(err).String()
}
