package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PayloadVersionV1 is sent with every create request so the provider can
// reject a shape it does not understand instead of guessing
const PayloadVersionV1 = "v1"

// ErrInvalidRequest is returned before any network call when the request is incomplete
var ErrInvalidRequest = errors.New("invalid gateway request")

// CreatePayloadV1 is the only wire shape for creating a payment
type CreatePayloadV1 struct {
	Version     string      `json:"version"`
	Amount      string      `json:"amount"`
	Method      string      `json:"method"`
	Reference   string      `json:"reference"`
	CallbackURL string      `json:"callback_url"`
	Recipient   RecipientV1 `json:"recipient"`
}

// RecipientV1 identifies who is asked to authorize the payment
type RecipientV1 struct {
	Phone string `json:"phone"`
}

// BuildCreatePayloadV1 validates req and builds the v1 create payload
func BuildCreatePayloadV1(req CreateRequest) (CreatePayloadV1, error) {
	if !req.Amount.IsPositive() {
		return CreatePayloadV1{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Method) == "" {
		return CreatePayloadV1{}, fmt.Errorf("%w: method is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Reference) == "" {
		return CreatePayloadV1{}, fmt.Errorf("%w: reference is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.RecipientPhone) == "" {
		return CreatePayloadV1{}, fmt.Errorf("%w: recipient phone is required", ErrInvalidRequest)
	}
	u, err := url.Parse(req.CallbackURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return CreatePayloadV1{}, fmt.Errorf("%w: callback url must be an absolute http(s) url", ErrInvalidRequest)
	}

	return CreatePayloadV1{
		Version:     PayloadVersionV1,
		Amount:      req.Amount.StringFixed(2),
		Method:      strings.ToLower(strings.TrimSpace(req.Method)),
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Recipient:   RecipientV1{Phone: strings.TrimSpace(req.RecipientPhone)},
	}, nil
}
