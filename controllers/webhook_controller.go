package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/utils"
	"github.com/Govind-619/paysync/webhook"
	"github.com/gin-gonic/gin"
)

// POST /v1/payments/webhook
//
// Duplicates are normal traffic and answer 200. Anything that fails
// verification is rejected before the engine sees it.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	utils.LogDebug("HandleWebhook called")

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxWebhookBodySize))
	if err != nil {
		utils.LogError("Failed to read webhook body: %v", err)
		utils.BadRequest(c, utils.ErrInvalidPayload, nil)
		return
	}

	signature := c.GetHeader(webhook.SignatureHeader)
	if signature == "" {
		signature = c.GetHeader(webhook.RazorpaySignatureHeader)
	}

	event, err := webhook.Verify(body, signature, pc.WebhookSecret)
	if err != nil {
		var vErr *webhook.VerificationError
		if errors.As(err, &vErr) && vErr.Kind == webhook.MalformedPayload {
			utils.LogError("Rejected malformed webhook from %s: %v", c.ClientIP(), err)
			utils.AbortWithAppError(c, utils.BadRequestError(utils.ErrInvalidPayload, err))
			return
		}
		utils.LogError("Rejected webhook with invalid signature from %s: %v", c.ClientIP(), err)
		utils.AbortWithAppError(c, utils.UnauthorizedError(utils.ErrInvalidSignature, err))
		return
	}

	res, err := pc.Engine.HandleWebhook(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, reconcile.ErrPaymentNotFound) {
			// 404 makes the provider retry, which covers a webhook racing the create response
			utils.LogError("Webhook for unknown reference %s", event.ProviderReference)
			utils.NotFound(c, utils.ErrPaymentNotFound)
			return
		}
		utils.LogError("Failed to apply webhook for reference %s: %v", event.ProviderReference, err)
		utils.InternalServerError(c, utils.ErrInternalServer, nil)
		return
	}

	utils.LogDebug("Webhook for %s applied: %s", event.ProviderReference, res.Outcome)
	utils.Success(c, utils.MsgWebhookAccepted, gin.H{
		"outcome": res.Outcome,
		"status":  res.Payment.Status,
	})
}
