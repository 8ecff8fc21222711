package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the reconciled state of one payment attempt
type PaymentStatus string

// Payment status constants
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// Valid reports whether s is one of the known statuses
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.IsTerminal()
}

// Payment is one payment attempt against the external gateway. Only the
// reconciliation engine writes Status, RawResponse, PollCount and LastPolledAt.
type Payment struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	OrderRef          *uint           `gorm:"index" json:"order_ref"`
	UserID            uint            `gorm:"index" json:"user_id"`
	Method            string          `gorm:"size:32;not null" json:"method"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	ProviderReference *string         `gorm:"size:128;uniqueIndex" json:"provider_reference"`
	Status            PaymentStatus   `gorm:"size:16;not null;index" json:"status"`
	RawResponse       datatypes.JSON  `json:"raw_response"`
	PollCount         int             `gorm:"not null;default:0" json:"poll_count"`
	LastPolledAt      *time.Time      `json:"last_polled_at"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ProviderRef returns the provider reference or "" when none is attached yet
func (p *Payment) ProviderRef() string {
	if p.ProviderReference == nil {
		return ""
	}
	return *p.ProviderReference
}

// Clone returns a deep copy so callers can mutate without aliasing
func (p *Payment) Clone() *Payment {
	cp := *p
	if p.OrderRef != nil {
		ref := *p.OrderRef
		cp.OrderRef = &ref
	}
	if p.ProviderReference != nil {
		ref := *p.ProviderReference
		cp.ProviderReference = &ref
	}
	if p.LastPolledAt != nil {
		at := *p.LastPolledAt
		cp.LastPolledAt = &at
	}
	if p.RawResponse != nil {
		cp.RawResponse = append(datatypes.JSON(nil), p.RawResponse...)
	}
	return &cp
}
