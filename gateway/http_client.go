package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	createPath = "/v1/payments"
	statusPath = "/v1/payments/{reference}"
)

// HTTPConfig configures HTTPClient
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPClient is the bearer-authenticated JSON gateway client
type HTTPClient struct {
	rest *resty.Client
}

// envelope is the provider's top-level response: a status discriminator plus a nested payload
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type createData struct {
	ProviderReference string `json:"provider_reference"`
	CheckoutURL       string `json:"checkout_url"`
}

type statusData struct {
	Reference     string `json:"reference"`
	PaymentStatus string `json:"payment_status"`
	Message       string `json:"message"`
}

// NewHTTPClient creates a gateway client for cfg
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &HTTPClient{rest: rest}
}

func (c *HTTPClient) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	const op = "create payment"
	payload, err := BuildCreatePayloadV1(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.Reference).
		SetBody(payload).
		Post(createPath)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	raw := resp.Body()
	env, err := decodeEnvelope(op, resp.StatusCode(), raw)
	if err != nil {
		return nil, err
	}

	var data createData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: resp.StatusCode(), Raw: raw, Err: err}
	}
	if strings.TrimSpace(data.ProviderReference) == "" {
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: resp.StatusCode(), Raw: raw, Message: "missing provider_reference"}
	}

	return &CreateResult{
		ProviderReference: data.ProviderReference,
		CheckoutURL:       data.CheckoutURL,
		Raw:               raw,
	}, nil
}

func (c *HTTPClient) QueryStatus(ctx context.Context, providerReference string) (*StatusResult, error) {
	const op = "query status"
	if strings.TrimSpace(providerReference) == "" {
		return nil, fmt.Errorf("%w: provider reference is required", ErrInvalidRequest)
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("reference", providerReference).
		Get(statusPath)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	raw := resp.Body()
	env, err := decodeEnvelope(op, resp.StatusCode(), raw)
	if err != nil {
		return nil, err
	}

	var data statusData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: resp.StatusCode(), Raw: raw, Err: err}
	}
	if strings.TrimSpace(data.PaymentStatus) == "" {
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: resp.StatusCode(), Raw: raw, Message: "missing payment_status"}
	}

	message := data.Message
	if message == "" {
		message = env.Message
	}
	return &StatusResult{
		Status:  NormalizeStatus(data.PaymentStatus),
		Message: message,
		Raw:     raw,
	}, nil
}

// decodeEnvelope classifies the HTTP status and the envelope discriminator
func decodeEnvelope(op string, code int, raw []byte) (*envelope, error) {
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return nil, &Error{Kind: KindUnavailable, Op: op, StatusCode: code, Raw: raw}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if code >= http.StatusBadRequest {
		e := &Error{Kind: KindRejected, Op: op, StatusCode: code, Raw: raw}
		if decodeErr == nil {
			e.Message = env.Message
		}
		return nil, e
	}
	if decodeErr != nil {
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: code, Raw: raw, Err: decodeErr}
	}

	switch strings.ToLower(env.Status) {
	case "success", "ok":
	case "error", "failed":
		return nil, &Error{Kind: KindRejected, Op: op, StatusCode: code, Raw: raw, Message: env.Message}
	default:
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: code, Raw: raw, Message: fmt.Sprintf("unexpected status %q", env.Status)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &Error{Kind: KindMalformed, Op: op, StatusCode: code, Raw: raw, Message: "missing data"}
	}
	return &env, nil
}
