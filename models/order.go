package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status constants. Only pending, paid and failed are set by payment
// reconciliation; the fulfilment statuses belong to other processes.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFailed    = "failed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// DefaultPaymentFailureReason is shown to the customer when the provider gave no message
const DefaultPaymentFailureReason = "payment could not be confirmed"

type Order struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"index" json:"user_id"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(12,2)" json:"total_amount"`
	Status        string          `gorm:"size:32;not null;default:pending" json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ContactEmail  string          `json:"contact_email"`
	ContactPhone  string          `json:"contact_phone"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
