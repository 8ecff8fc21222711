package gateway

import (
	"context"
	"encoding/json"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayClient adapts razorpay orders to the gateway contract. Razorpay
// reports "paid" for a captured order; "created" and "attempted" carry no
// terminal information and map to unknown.
type RazorpayClient struct {
	client   *razorpay.Client
	currency string
}

// NewRazorpayClient creates a razorpay adapter using key/secret basic auth
func NewRazorpayClient(key, secret string) *RazorpayClient {
	return &RazorpayClient{
		client:   razorpay.NewClient(key, secret),
		currency: "INR",
	}
}

// CreatePayment creates a razorpay order. The razorpay SDK is not context
// aware, so ctx is only checked before the call.
func (c *RazorpayClient) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	const op = "razorpay create order"
	payload, err := BuildCreatePayloadV1(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	orderData := map[string]interface{}{
		"amount":          req.Amount.Shift(2).IntPart(),
		"currency":        c.currency,
		"receipt":         payload.Reference,
		"payment_capture": 1,
		"notes": map[string]interface{}{
			"method":          payload.Method,
			"callback_url":    payload.CallbackURL,
			"recipient_phone": payload.Recipient.Phone,
			"payload_version": payload.Version,
		},
	}
	body, err := c.client.Order.Create(orderData, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	raw, _ := json.Marshal(body)
	id, _ := body["id"].(string)
	if strings.TrimSpace(id) == "" {
		return nil, &Error{Kind: KindMalformed, Op: op, Raw: raw, Message: "missing order id"}
	}
	return &CreateResult{ProviderReference: id, Raw: raw}, nil
}

func (c *RazorpayClient) QueryStatus(ctx context.Context, providerReference string) (*StatusResult, error) {
	const op = "razorpay fetch order"
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	body, err := c.client.Order.Fetch(providerReference, nil, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	raw, _ := json.Marshal(body)
	status, _ := body["status"].(string)
	if status == "" {
		return nil, &Error{Kind: KindMalformed, Op: op, Raw: raw, Message: "missing order status"}
	}
	return &StatusResult{Status: razorpayStatus(status), Raw: raw}, nil
}

func razorpayStatus(orderStatus string) Status {
	if strings.EqualFold(orderStatus, "paid") {
		return StatusSucceeded
	}
	return StatusUnknown
}
