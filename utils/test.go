package utils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestJWTSecret signs the tokens used in handler tests
const TestJWTSecret = "test-jwt-secret"

// TestRequest represents a test HTTP request. RawBody, when set, is sent
// as-is instead of the JSON encoding of Body.
type TestRequest struct {
	Method  string
	Path    string
	Body    interface{}
	RawBody []byte
	Headers map[string]string
}

// TestResponse represents a test HTTP response
type TestResponse struct {
	StatusCode int
	Headers    http.Header
	Body       map[string]interface{}
	Raw        []byte
}

// MakeTestRequest makes a test HTTP request
func MakeTestRequest(t *testing.T, router http.Handler, req TestRequest) TestResponse {
	t.Helper()

	body := req.RawBody
	if body == nil && req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}

	httpReq, err := http.NewRequest(req.Method, req.Path, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)

	// Report downloads are not JSON; only decode what looks like it
	var responseBody map[string]interface{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(w.Body.Bytes(), &responseBody); err != nil {
			t.Fatalf("Failed to unmarshal response body: %v", err)
		}
	}

	return TestResponse{
		StatusCode: w.Code,
		Headers:    w.Header(),
		Body:       responseBody,
		Raw:        w.Body.Bytes(),
	}
}

// AssertResponse asserts the status code and, when given, the response message
func AssertResponse(t *testing.T, response TestResponse, expectedStatusCode int, expectedMessage string) {
	t.Helper()
	assert.Equal(t, expectedStatusCode, response.StatusCode, string(response.Raw))
	if expectedMessage != "" {
		assert.Equal(t, expectedMessage, response.Body["message"])
	}
}

// GetTestToken generates a bearer header value for a customer
func GetTestToken(t *testing.T, userID uint) string {
	t.Helper()
	return testToken(t, userID, RoleUser)
}

// GetTestAdminToken generates a bearer header value for an admin
func GetTestAdminToken(t *testing.T, userID uint) string {
	t.Helper()
	return testToken(t, userID, RoleAdmin)
}

func testToken(t *testing.T, userID uint, role string) string {
	token, err := GenerateToken(TestJWTSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate test token: %v", err)
	}
	return "Bearer " + token
}
