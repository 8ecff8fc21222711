// Package ordersync moves the owning order forward when a payment reaches a
// terminal state and announces the change to the customer and the admin.
package ordersync

import (
	"context"
	"fmt"
	"strings"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/notify"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/utils"
)

// Synchronizer applies terminal payment states to orders
type Synchronizer struct {
	orders     repository.OrderRepository
	dispatcher notify.Dispatcher
	adminEmail string
}

// New creates a Synchronizer. adminEmail may be empty to skip admin notifications.
func New(orders repository.OrderRepository, dispatcher notify.Dispatcher, adminEmail string) *Synchronizer {
	return &Synchronizer{orders: orders, dispatcher: dispatcher, adminEmail: adminEmail}
}

// OrderStatusFor maps a terminal payment status onto the order status it implies
func OrderStatusFor(status models.PaymentStatus) (string, error) {
	switch status {
	case models.PaymentStatusPaid:
		return models.OrderStatusPaid, nil
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		return models.OrderStatusFailed, nil
	default:
		return "", fmt.Errorf("payment status %q is not terminal", status)
	}
}

// Sync moves order orderRef out of pending. reason is the customer facing
// failure text; it is ignored for paid orders and defaulted for failed ones.
// Notification failures are logged and never returned.
func (s *Synchronizer) Sync(ctx context.Context, orderRef uint, status models.PaymentStatus, reason string) error {
	orderStatus, err := OrderStatusFor(status)
	if err != nil {
		return err
	}
	if orderStatus == models.OrderStatusPaid {
		reason = ""
	} else if strings.TrimSpace(reason) == "" {
		reason = models.DefaultPaymentFailureReason
	}

	changed, err := s.orders.TransitionFromPending(ctx, orderRef, orderStatus, reason)
	if err != nil {
		return fmt.Errorf("sync order %d: %w", orderRef, err)
	}
	if !changed {
		utils.LogInfo("Order %d is no longer pending, leaving it as is (payment %s)", orderRef, status)
		return nil
	}
	utils.LogInfo("Order %d moved to %s", orderRef, orderStatus)

	order, err := s.orders.FindByID(ctx, orderRef)
	if err != nil {
		utils.LogError("Order %d updated but could not be reloaded for notification: %v", orderRef, err)
		return nil
	}
	s.notify(ctx, order, reason)
	return nil
}

func (s *Synchronizer) notify(ctx context.Context, order *models.Order, reason string) {
	if s.dispatcher == nil {
		return
	}

	recipient := order.ContactEmail
	if recipient == "" {
		recipient = order.ContactPhone
	}
	if recipient == "" {
		utils.LogError("Order %d has no contact address, customer not notified", order.ID)
	} else {
		s.dispatch(ctx, notify.Notification{
			OrderID:   order.ID,
			Status:    order.Status,
			Recipient: recipient,
			Audience:  notify.AudienceCustomer,
			Reason:    reason,
		})
	}

	if s.adminEmail != "" {
		s.dispatch(ctx, notify.Notification{
			OrderID:   order.ID,
			Status:    order.Status,
			Recipient: s.adminEmail,
			Audience:  notify.AudienceAdmin,
			Reason:    reason,
		})
	}
}

func (s *Synchronizer) dispatch(ctx context.Context, n notify.Notification) {
	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		utils.LogError("Failed to dispatch %s notification for order %d: %v", n.Audience, n.OrderID, err)
	}
}
