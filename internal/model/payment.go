package model

type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPix        PaymentMethod = "pix"
)

// Gateway order/charge statuses we act on.
const (
	StatusPaid       = "paid"
	StatusPending    = "pending"
	StatusAuthorized = "authorized"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// IsAttemptSuccess is the checkout success gate: paid and authorized always
// count, pending only while a PIX code waits to be paid.
func IsAttemptSuccess(method PaymentMethod, status string) bool {
	switch status {
	case StatusPaid, StatusAuthorized:
		return true
	case StatusPending:
		return method == PaymentMethodPix
	default:
		return false
	}
}
