package utils

// Application constants
const (
	// API version
	APIVersion = "v1"

	// Default port
	DefaultPort = "8080"

	// Default pagination limit
	DefaultPaginationLimit = 10

	// Maximum pagination limit
	MaxPaginationLimit = 100

	// Maximum accepted webhook body (1MB)
	MaxWebhookBodySize = 1 << 20
)

// Error messages
const (
	ErrUnauthorized       = "Please login for access"
	ErrForbidden          = "Admin access required"
	ErrInvalidSignature   = "Invalid webhook signature"
	ErrInvalidPayload     = "Invalid webhook payload"
	ErrPaymentNotFound    = "Payment not found"
	ErrInternalServer     = "Internal server error"
	ErrServiceUnavailable = "Payment provider unavailable, please retry"
)

// Success messages
const (
	MsgPaymentInitiated = "Payment initiated successfully"
	MsgPaymentFetched   = "Payment retrieved successfully"
	MsgPaymentCancelled = "Payment cancelled"
	MsgWebhookAccepted  = "Webhook accepted"
	MsgPollCompleted    = "Payment status refreshed"
)
