// Package gateway talks to the external payment provider and reduces its
// responses to a small normalized shape. It never writes to the store; every
// raw body, successful or not, is handed back to the caller for auditing.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the normalized payment status reported by the provider
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusUnknown means no new information: still processing or an
	// unrecognized provider status. It is never a failure.
	StatusUnknown Status = "unknown"
)

// Client is the gateway contract used by checkout and the poller
type Client interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	QueryStatus(ctx context.Context, providerReference string) (*StatusResult, error)
}

// CreateRequest carries everything the provider needs to start a payment
type CreateRequest struct {
	Amount         decimal.Decimal
	Method         string
	Reference      string // caller chosen, idempotent
	CallbackURL    string
	RecipientPhone string
}

// CreateResult is the provider acknowledgement of a created payment
type CreateResult struct {
	ProviderReference string
	CheckoutURL       string
	Raw               []byte
}

// StatusResult is one status query answer
type StatusResult struct {
	Status  Status
	Message string
	Raw     []byte
}

// ErrorKind classifies gateway failures
type ErrorKind string

const (
	// KindUnavailable is transient: network failure, 5xx or 429
	KindUnavailable ErrorKind = "gateway_unavailable"
	// KindRejected is a 4xx or an explicit error envelope with a provider reason
	KindRejected ErrorKind = "gateway_rejected"
	// KindMalformed means the response could not be parsed into the expected shape
	KindMalformed ErrorKind = "gateway_malformed_response"
)

// Error is returned by every Client method on failure
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	Raw        []byte
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the gateway error kind of err, or "" for other errors
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// IsUnavailable reports whether err is a transient gateway failure
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }

// IsRejected reports whether the provider refused the request
func IsRejected(err error) bool { return KindOf(err) == KindRejected }

// IsMalformed reports whether the provider answered with an unexpected shape
func IsMalformed(err error) bool { return KindOf(err) == KindMalformed }

// NormalizeStatus maps provider status strings onto Status
func NormalizeStatus(providerStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "succeeded", "success", "successful", "completed", "paid", "captured":
		return StatusSucceeded
	case "failed", "failure", "declined", "rejected", "cancelled", "canceled", "expired", "reversed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}
