// Package ledger carries the enums shared by every invoice kind and the
// credit ledger: row status, operation type, and the used_for variant.
package ledger

import "errors"

var (
	// ErrCoolDown rejects a same-lane attempt before the payment
	// cool-down fence of the previous row has elapsed.
	ErrCoolDown = errors.New("payment cool-down is live")
	// ErrPaymentInFlight rejects a same-lane attempt while the previous
	// row is pending behind a payment awaiting resolution.
	ErrPaymentInFlight = errors.New("a payment in this lane is awaiting approval")
	// ErrRevoked rejects settlement of a row that was revoked after its
	// payment went in flight.
	ErrRevoked = errors.New("the invoice was revoked")
)

// Status is the lifecycle of any invoice-kind row.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusRevoked Status = "revoked"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRevoked
}

// OperationType distinguishes credit and base-balance movements.
type OperationType string

const (
	OpIncrease OperationType = "increase"
	OpDecrease OperationType = "decrease"
)

// UsedFor tags what a decrease CreditInvoice settles.
type UsedFor string

const (
	UsedForInvoice            UsedFor = "invoice"
	UsedForBaseBalanceInvoice UsedFor = "base_balance_invoice"
	UsedForPackageInvoice     UsedFor = "package_invoice"
)
