package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() CreateRequest {
	return CreateRequest{
		Amount:         decimal.NewFromInt(50),
		Method:         "mpesa",
		Reference:      "P1",
		CallbackURL:    "https://shop.example.com/v1/payments/webhook",
		RecipientPhone: "+254700000000",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Token: "secret-token", Timeout: 2 * time.Second})
}

func TestHTTPClient_CreatePayment(t *testing.T) {
	var gotBody CreatePayloadV1
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "P1", r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"provider_reference":"R1","checkout_url":"https://pay.example.com/R1"}}`))
	})

	res, err := client.CreatePayment(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "R1", res.ProviderReference)
	assert.Equal(t, "https://pay.example.com/R1", res.CheckoutURL)
	assert.Contains(t, string(res.Raw), `"R1"`)

	assert.Equal(t, PayloadVersionV1, gotBody.Version)
	assert.Equal(t, "50.00", gotBody.Amount)
	assert.Equal(t, "mpesa", gotBody.Method)
	assert.Equal(t, "+254700000000", gotBody.Recipient.Phone)
}

func TestHTTPClient_CreatePaymentErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		kind    ErrorKind
		message string
	}{
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, KindUnavailable, ""},
		{"rate limited", http.StatusTooManyRequests, `{}`, KindUnavailable, ""},
		{"rejected", http.StatusUnprocessableEntity, `{"status":"error","message":"invalid phone"}`, KindRejected, "invalid phone"},
		{"error envelope", http.StatusOK, `{"status":"error","message":"insufficient funds"}`, KindRejected, "insufficient funds"},
		{"not json", http.StatusOK, `ok`, KindMalformed, ""},
		{"missing reference", http.StatusOK, `{"status":"success","data":{}}`, KindMalformed, "missing provider_reference"},
		{"missing data", http.StatusOK, `{"status":"success"}`, KindMalformed, "missing data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			})

			res, err := client.CreatePayment(context.Background(), validRequest())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, KindOf(err))

			var gwErr *Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.body, string(gwErr.Raw), "raw body is handed back for auditing")
			if tt.message != "" {
				assert.Equal(t, tt.message, gwErr.Message)
			}
		})
	}
}

func TestHTTPClient_NetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: url, Token: "t", Timeout: time.Second})
	_, err := client.QueryStatus(context.Background(), "R1")
	assert.True(t, IsUnavailable(err))
}

func TestHTTPClient_InvalidRequestNeverCallsGateway(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	req := validRequest()
	req.Amount = decimal.Zero
	_, err := client.CreatePayment(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, ErrorKind(""), KindOf(err))
	assert.False(t, called)
}

func TestHTTPClient_QueryStatus(t *testing.T) {
	tests := []struct {
		providerStatus string
		want           Status
	}{
		{"completed", StatusSucceeded},
		{"SUCCESS", StatusSucceeded},
		{"failed", StatusFailed},
		{"declined", StatusFailed},
		{"processing", StatusUnknown},
		{"queued_for_review", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.providerStatus, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/payments/R1", r.URL.Path)
				w.Write([]byte(`{"status":"success","data":{"reference":"R1","payment_status":"` + tt.providerStatus + `","message":"note"}}`))
			})

			res, err := client.QueryStatus(context.Background(), "R1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, "note", res.Message)
			assert.NotEmpty(t, res.Raw)
		})
	}
}

func TestHTTPClient_QueryStatusMissingStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"reference":"R1"}}`))
	})

	_, err := client.QueryStatus(context.Background(), "R1")
	assert.True(t, IsMalformed(err))
}

func TestBuildCreatePayloadV1(t *testing.T) {
	p, err := BuildCreatePayloadV1(validRequest())
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"version": "v1",
		"amount": "50.00",
		"method": "mpesa",
		"reference": "P1",
		"callback_url": "https://shop.example.com/v1/payments/webhook",
		"recipient": {"phone": "+254700000000"}
	}`, string(raw))

	invalid := []func(*CreateRequest){
		func(r *CreateRequest) { r.Amount = decimal.NewFromInt(-1) },
		func(r *CreateRequest) { r.Method = " " },
		func(r *CreateRequest) { r.Reference = "" },
		func(r *CreateRequest) { r.RecipientPhone = "" },
		func(r *CreateRequest) { r.CallbackURL = "/relative/path" },
	}
	for i, mutate := range invalid {
		req := validRequest()
		mutate(&req)
		_, err := BuildCreatePayloadV1(req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "case %d", i)
	}
}

func TestRazorpayStatus(t *testing.T) {
	assert.Equal(t, StatusSucceeded, razorpayStatus("paid"))
	assert.Equal(t, StatusUnknown, razorpayStatus("attempted"))
	assert.Equal(t, StatusUnknown, razorpayStatus("created"))
}
