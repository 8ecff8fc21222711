// Package webhook authenticates provider callbacks and reduces them to a
// NormalizedEvent. Nothing that fails verification may reach the engine.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Govind-619/paysync/gateway"
)

// Signature headers checked by the webhook endpoint, in order
const (
	SignatureHeader         = "X-Signature"
	RazorpaySignatureHeader = "X-Razorpay-Signature"
)

// ErrorKind classifies verification failures
type ErrorKind string

const (
	InvalidSignature ErrorKind = "invalid_signature"
	MalformedPayload ErrorKind = "malformed_payload"
)

// VerificationError is returned for every rejected callback
type VerificationError struct {
	Kind   ErrorKind
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("webhook %s: %s", e.Kind, e.Reason)
}

// NormalizedEvent is a verified callback reduced to what the engine needs
type NormalizedEvent struct {
	ProviderReference string
	Status            gateway.Status
	OccurredAt        time.Time // zero when the provider did not say
	Message           string
	Raw               json.RawMessage
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature over the raw body and parses it
func Verify(rawBody []byte, signatureHeader, sharedSecret string) (*NormalizedEvent, error) {
	if sharedSecret == "" {
		return nil, &VerificationError{Kind: InvalidSignature, Reason: "no shared secret configured"}
	}
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return nil, &VerificationError{Kind: InvalidSignature, Reason: "missing signature"}
	}
	given, err := hex.DecodeString(sig)
	if err != nil {
		return nil, &VerificationError{Kind: InvalidSignature, Reason: "signature is not hex"}
	}

	mac := hmac.New(sha256.New, []byte(sharedSecret))
	mac.Write(rawBody)
	if !hmac.Equal(given, mac.Sum(nil)) {
		return nil, &VerificationError{Kind: InvalidSignature, Reason: "signature mismatch"}
	}

	return parse(rawBody)
}

type callbackData struct {
	Reference         string `json:"reference"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
	OccurredAt        string `json:"occurred_at"`
	Message           string `json:"message"`
}

type callbackBody struct {
	callbackData
	Data *callbackData `json:"data"`

	// razorpay envelope
	Event     string           `json:"event"`
	Payload   *razorpayPayload `json:"payload"`
	CreatedAt int64            `json:"created_at"`
}

type razorpayPayload struct {
	Order *struct {
		Entity struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"entity"`
	} `json:"order"`
	Payment *struct {
		Entity struct {
			OrderID          string `json:"order_id"`
			Status           string `json:"status"`
			ErrorDescription string `json:"error_description"`
		} `json:"entity"`
	} `json:"payment"`
}

func parse(rawBody []byte) (*NormalizedEvent, error) {
	var body callbackBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, &VerificationError{Kind: MalformedPayload, Reason: "body is not a json object"}
	}

	var ev *NormalizedEvent
	var err error
	if body.Event != "" && body.Payload != nil {
		ev, err = parseRazorpay(body)
	} else {
		data := body.callbackData
		if body.Data != nil {
			data = *body.Data
		}
		ev, err = parseCanonical(data)
	}
	if err != nil {
		return nil, err
	}
	ev.Raw = json.RawMessage(rawBody)
	return ev, nil
}

func parseCanonical(data callbackData) (*NormalizedEvent, error) {
	ref := strings.TrimSpace(data.Reference)
	if ref == "" {
		ref = strings.TrimSpace(data.ProviderReference)
	}
	if ref == "" {
		return nil, &VerificationError{Kind: MalformedPayload, Reason: "missing reference"}
	}
	if strings.TrimSpace(data.Status) == "" {
		return nil, &VerificationError{Kind: MalformedPayload, Reason: "missing status"}
	}

	ev := &NormalizedEvent{
		ProviderReference: ref,
		Status:            gateway.NormalizeStatus(data.Status),
		Message:           data.Message,
	}
	if data.OccurredAt != "" {
		at, err := time.Parse(time.RFC3339, data.OccurredAt)
		if err != nil {
			return nil, &VerificationError{Kind: MalformedPayload, Reason: "occurred_at is not RFC3339"}
		}
		ev.OccurredAt = at.UTC()
	}
	return ev, nil
}

func parseRazorpay(body callbackBody) (*NormalizedEvent, error) {
	ev := &NormalizedEvent{Status: gateway.StatusUnknown}
	if body.CreatedAt > 0 {
		ev.OccurredAt = time.Unix(body.CreatedAt, 0).UTC()
	}

	if o := body.Payload.Order; o != nil {
		ev.ProviderReference = o.Entity.ID
	}
	if p := body.Payload.Payment; p != nil {
		if ev.ProviderReference == "" {
			ev.ProviderReference = p.Entity.OrderID
		}
		ev.Message = p.Entity.ErrorDescription
	}
	if strings.TrimSpace(ev.ProviderReference) == "" {
		return nil, &VerificationError{Kind: MalformedPayload, Reason: "missing order id"}
	}

	switch body.Event {
	case "order.paid", "payment.captured":
		ev.Status = gateway.StatusSucceeded
	case "payment.failed":
		ev.Status = gateway.StatusFailed
	}
	return ev, nil
}
