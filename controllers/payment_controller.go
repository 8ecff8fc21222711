package controllers

import (
	"errors"
	"strings"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/middleware"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/poller"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentController serves the checkout, webhook and admin payment endpoints
type PaymentController struct {
	Payments      repository.PaymentRepository
	Orders        repository.OrderRepository
	Engine        *reconcile.Engine
	Poller        *poller.Scheduler
	Gateway       gateway.Client
	WebhookSecret string
	CallbackURL   string
}

type initiatePaymentRequest struct {
	OrderID uint   `json:"order_id"`
	Amount  string `json:"amount"`
	Method  string `json:"method" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
}

// POST /v1/payments
func (pc *PaymentController) InitiatePayment(c *gin.Context) {
	utils.LogInfo("InitiatePayment called")
	userID := c.GetUint(middleware.UserIDKey)

	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError("Invalid payment request for user ID: %d: %v", userID, err)
		utils.BadRequest(c, "Invalid request. method and phone are required", err.Error())
		return
	}

	payment := &models.Payment{
		ID:     uuid.New().String(),
		UserID: userID,
		Method: strings.ToLower(strings.TrimSpace(req.Method)),
		Status: models.PaymentStatusPending,
	}

	if req.OrderID != 0 {
		order, ok := pc.ownedPendingOrder(c, userID, req.OrderID)
		if !ok {
			return
		}
		orderRef := order.ID
		payment.OrderRef = &orderRef
		payment.Amount = order.TotalAmount
	} else {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			utils.BadRequest(c, "amount must be a positive decimal when no order_id is given", nil)
			return
		}
		payment.Amount = amount
	}

	if !payment.Amount.IsPositive() {
		utils.BadRequest(c, "Payment amount must be positive", nil)
		return
	}

	if err := pc.Payments.Create(c.Request.Context(), payment); err != nil {
		utils.LogError("Failed to create payment for user ID: %d: %v", userID, err)
		utils.InternalServerError(c, "Failed to create payment", nil)
		return
	}
	utils.LogInfo("Created payment %s for user ID: %d", payment.ID, userID)

	// the payment row exists before the gateway call so every response can be recorded against it
	created, err := pc.Gateway.CreatePayment(c.Request.Context(), gateway.CreateRequest{
		Amount:         payment.Amount,
		Method:         payment.Method,
		Reference:      payment.ID,
		CallbackURL:    pc.CallbackURL,
		RecipientPhone: req.Phone,
	})
	if err != nil {
		pc.handleCreateFailure(c, payment.ID, err)
		return
	}

	payment, err = pc.Engine.AttachProviderReference(c.Request.Context(), payment.ID, created.ProviderReference, created.Raw)
	if err != nil {
		utils.LogError("Failed to attach provider reference %s to payment: %v", created.ProviderReference, err)
		utils.InternalServerError(c, "Failed to record payment reference", nil)
		return
	}

	utils.Created(c, utils.MsgPaymentInitiated, gin.H{
		"payment":      toPaymentView(payment, nil),
		"checkout_url": created.CheckoutURL,
	})
}

func (pc *PaymentController) handleCreateFailure(c *gin.Context, paymentID string, gwErr error) {
	utils.LogError("Gateway create failed for payment %s: %v", paymentID, gwErr)
	if errors.Is(gwErr, gateway.ErrInvalidRequest) {
		if _, err := pc.Engine.Cancel(c.Request.Context(), paymentID, "invalid payment details"); err != nil {
			utils.LogError("Failed to cancel invalid payment %s: %v", paymentID, err)
		}
		utils.BadRequest(c, "Invalid payment details", gwErr.Error())
		return
	}

	res, err := pc.Engine.RecordCreateFailure(c.Request.Context(), paymentID, gwErr)
	if err != nil {
		utils.LogError("Failed to record gateway failure for payment %s: %v", paymentID, err)
	}

	var ge *gateway.Error
	if errors.As(gwErr, &ge) && ge.Kind == gateway.KindRejected {
		message := ge.Message
		if message == "" {
			message = models.DefaultPaymentFailureReason
		}
		utils.AbortWithAppError(c, utils.UnprocessableError(message, gwErr).WithDetails(gin.H{"payment": toPaymentView(res.Payment, nil)}))
		return
	}
	utils.AbortWithAppError(c, utils.ServiceUnavailableError(utils.ErrServiceUnavailable, gwErr))
}

// GET /v1/payments/:id
func (pc *PaymentController) GetPayment(c *gin.Context) {
	utils.LogInfo("GetPayment called")
	payment, ok := pc.ownedPayment(c)
	if !ok {
		return
	}

	var order *models.Order
	if payment.OrderRef != nil {
		if o, err := pc.Orders.FindByID(c.Request.Context(), *payment.OrderRef); err == nil {
			order = o
		}
	}
	utils.Success(c, utils.MsgPaymentFetched, gin.H{"payment": toPaymentView(payment, order)})
}

type cancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// POST /v1/payments/:id/cancel
func (pc *PaymentController) CancelPayment(c *gin.Context) {
	utils.LogInfo("CancelPayment called")
	payment, ok := pc.ownedPayment(c)
	if !ok {
		return
	}

	var req cancelPaymentRequest
	_ = c.ShouldBindJSON(&req)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled by customer"
	}

	res, err := pc.Engine.Cancel(c.Request.Context(), payment.ID, reason)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	if res.Outcome == reconcile.AlreadyFinalized {
		utils.Conflict(c, "Payment is already "+string(res.Payment.Status), nil)
		return
	}
	utils.Success(c, utils.MsgPaymentCancelled, gin.H{"payment": toPaymentView(res.Payment, nil)})
}

type attachOrderRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

// POST /v1/payments/:id/order
func (pc *PaymentController) AttachOrder(c *gin.Context) {
	utils.LogInfo("AttachOrder called")
	userID := c.GetUint(middleware.UserIDKey)
	payment, ok := pc.ownedPayment(c)
	if !ok {
		return
	}

	var req attachOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request. order_id is required", err.Error())
		return
	}
	order, err := pc.Orders.FindByID(c.Request.Context(), req.OrderID)
	if err != nil || order.UserID != userID {
		utils.NotFound(c, "Order not found")
		return
	}

	updated, err := pc.Engine.AttachOrder(c.Request.Context(), payment.ID, order.ID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	utils.Success(c, "Order attached to payment", gin.H{"payment": toPaymentView(updated, nil)})
}

func (pc *PaymentController) ownedPendingOrder(c *gin.Context, userID, orderID uint) (*models.Order, bool) {
	order, err := pc.Orders.FindByID(c.Request.Context(), orderID)
	if err != nil || order.UserID != userID {
		utils.LogError("Order not found for ID: %d, user ID: %d", orderID, userID)
		utils.NotFound(c, "Order not found")
		return nil, false
	}
	if order.Status != models.OrderStatusPending {
		utils.LogError("Order %d is %s, payment not initiated", order.ID, order.Status)
		utils.Conflict(c, "Payment for this order has already been completed", nil)
		return nil, false
	}
	return order, true
}

// ownedPayment loads :id and hides payments of other users as not found
func (pc *PaymentController) ownedPayment(c *gin.Context) (*models.Payment, bool) {
	userID := c.GetUint(middleware.UserIDKey)
	payment, err := pc.Payments.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			utils.LogError("Failed to load payment %s: %v", c.Param("id"), err)
			utils.InternalServerError(c, "Failed to load payment", nil)
			return nil, false
		}
		utils.NotFound(c, utils.ErrPaymentNotFound)
		return nil, false
	}
	if payment.UserID != userID {
		utils.LogError("User %d requested payment %s of another user", userID, payment.ID)
		utils.NotFound(c, utils.ErrPaymentNotFound)
		return nil, false
	}
	return payment, true
}

func respondEngineError(c *gin.Context, err error) {
	utils.AbortWithAppError(c, engineAppError(err))
}

// engineAppError maps engine and poller errors to their HTTP status
func engineAppError(err error) *utils.AppError {
	switch {
	case errors.Is(err, reconcile.ErrPaymentNotFound):
		return utils.NotFoundError(utils.ErrPaymentNotFound, err)
	case errors.Is(err, reconcile.ErrOrderConflict),
		errors.Is(err, reconcile.ErrReferenceConflict),
		errors.Is(err, poller.ErrNoProviderReference):
		return utils.ConflictError(err.Error(), err)
	default:
		return utils.AsAppError(err)
	}
}
