package services

import (
	"errors"
	"fmt"

	"github.com/example/upilink/internal/phonepe"
	"github.com/example/upilink/internal/repository"
)

var (
	ErrTransactionNotFound     = repository.ErrNotFound
	ErrDuplicateTransaction    = repository.ErrDuplicateID
	ErrInvalidSignature        = errors.New("callback signature verification failed")
	ErrMalformedCallback       = phonepe.ErrMalformedCallback
	ErrTransactionNotSubmitted = errors.New("transaction has not been submitted to the gateway yet")
)

// GatewayErrorKind separates "not set up" from "declined" from "unreachable".
type GatewayErrorKind int

const (
	GatewayMisconfigured GatewayErrorKind = iota + 1
	GatewayRejected
	GatewayTransport
)

func (k GatewayErrorKind) String() string {
	switch k {
	case GatewayMisconfigured:
		return "CREDENTIALS_MISSING"
	case GatewayRejected:
		return "PAYMENT_REJECTED"
	case GatewayTransport:
		return "PHONEPE_API_ERROR"
	default:
		return "UNKNOWN"
	}
}

// GatewayError wraps a failed gateway call.
type GatewayError struct {
	Kind    GatewayErrorKind
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func classifyGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, phonepe.ErrMisconfigured) {
		return &GatewayError{Kind: GatewayMisconfigured, Message: err.Error(), Err: err}
	}
	var rejected *phonepe.RejectedError
	if errors.As(err, &rejected) {
		return &GatewayError{Kind: GatewayRejected, Code: rejected.Code, Message: rejected.Message, Err: err}
	}
	return &GatewayError{Kind: GatewayTransport, Message: err.Error(), Err: err}
}
