package controllers

import (
	"time"

	"github.com/Govind-619/paysync/models"
)

// paymentView is what customers see. Raw provider payloads never leave the admin API.
type paymentView struct {
	ID            string    `json:"id"`
	OrderID       *uint     `json:"order_id,omitempty"`
	Method        string    `json:"method"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPaymentView(p *models.Payment, order *models.Order) *paymentView {
	if p == nil {
		return nil
	}
	v := &paymentView{
		ID:        p.ID,
		OrderID:   p.OrderRef,
		Method:    p.Method,
		Amount:    p.Amount.StringFixed(2),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if order != nil && p.Status != models.PaymentStatusPaid && p.Status != models.PaymentStatusPending {
		v.FailureReason = order.FailureReason
	}
	return v
}

// adminPaymentView adds the reconciliation bookkeeping
type adminPaymentView struct {
	paymentView
	UserID            uint       `json:"user_id"`
	ProviderReference string     `json:"provider_reference,omitempty"`
	PollCount         int        `json:"poll_count"`
	LastPolledAt      *time.Time `json:"last_polled_at,omitempty"`
}

func toAdminPaymentView(p *models.Payment) adminPaymentView {
	return adminPaymentView{
		paymentView:       *toPaymentView(p, nil),
		UserID:            p.UserID,
		ProviderReference: p.ProviderRef(),
		PollCount:         p.PollCount,
		LastPolledAt:      p.LastPolledAt,
	}
}

type auditEntryView struct {
	Key     string      `json:"key"`
	Source  string      `json:"source"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

func toAuditViews(entries []models.AuditEntry) []auditEntryView {
	views := make([]auditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView{Key: e.Key, Source: e.Source, At: e.At, Payload: e.Payload})
	}
	return views
}
