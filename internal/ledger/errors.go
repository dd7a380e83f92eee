package ledger

import "errors"

var (
	// ErrZeroAmount rejects deposits, withdrawals and funding of zero.
	ErrZeroAmount = errors.New("zero amount")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the caller's principal.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrTransferFailed is returned when the asset ledger rejects or fails a transfer.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrNotOwner is returned when a non-operator calls an operator-only method.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrOverflow is returned when checked 256-bit arithmetic would wrap.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrTransferUnknown is returned when a transfer may or may not have
	// executed. The ledger halts until the operator reconciles it.
	ErrTransferUnknown = errors.New("transfer outcome unknown")
	// ErrHalted rejects mutating operations while a transfer awaits reconciliation.
	ErrHalted = errors.New("ledger halted pending reconciliation")
	// ErrNothingToReconcile is returned by Reconcile when the ledger is not halted.
	ErrNothingToReconcile = errors.New("nothing to reconcile")
)

// OutcomeUnknown is implemented by asset errors raised after a transfer was
// submitted but its result could not be observed.
type OutcomeUnknown interface {
	OutcomeUnknown() bool
}

func isOutcomeUnknown(err error) bool {
	var u OutcomeUnknown
	return errors.As(err, &u) && u.OutcomeUnknown()
}

// Kind names the failure class of err for logs and metrics: "success" for
// nil, "internal" for anything that is not a ledger sentinel.
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrTransferUnknown):
		return "transfer_unknown"
	case errors.Is(err, ErrHalted):
		return "halted"
	case errors.Is(err, ErrNothingToReconcile):
		return "nothing_to_reconcile"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	default:
		return "internal"
	}
}
