package service

import (
	"errors"
	"fmt"
	"net/http"

	"looneca-storefront/internal/client"
)

// Kinds of failure a checkout or lookup can end in. Match with errors.Is.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrValidation         = errors.New("validation error")
	ErrGatewayRejected    = errors.New("gateway rejected")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrPersistence        = errors.New("persistence error")
	ErrNotFound           = errors.New("not found")
)

const (
	msgConfiguration = "payment configuration incomplete"
	msgUnavailable   = "payment service temporarily unavailable, please try again"
	msgRejected      = "payment was not approved, please review your details and try again"
)

// Error carries a user-safe Message next to the internal cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func validationError(format string, args ...any) *Error {
	return newError(ErrValidation, fmt.Sprintf(format, args...), nil)
}

// gatewayError sorts a failed gateway call into the taxonomy. Anything that is
// not a definite 4xx answer (transport failure, timeout, non-JSON body,
// unexpected shape) is retryable.
func gatewayError(err error) *Error {
	var gwErr *client.GatewayError
	if !errors.As(err, &gwErr) || gwErr.Retryable() {
		return newError(ErrGatewayUnavailable, msgUnavailable, err)
	}

	if gwErr.Status == http.StatusUnauthorized || gwErr.Status == http.StatusForbidden {
		return newError(ErrConfiguration, msgConfiguration, err)
	}

	msg := gwErr.Message
	if msg == "" {
		msg = msgRejected
	}
	return newError(ErrGatewayRejected, msg, err)
}
