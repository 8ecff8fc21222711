package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/report"
	"github.com/Govind-619/paysync/repository"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
)

// GET /v1/admin/payments
func (pc *PaymentController) AdminListPayments(c *gin.Context) {
	utils.LogInfo("AdminListPayments called")
	pagination := utils.NewPagination(c)

	filter := repository.PaymentFilter{Limit: pagination.Limit, Offset: pagination.Offset}
	if status := c.Query("status"); status != "" {
		filter.Status = models.PaymentStatus(status)
		if !filter.Status.Valid() {
			utils.BadRequest(c, "Invalid status", "status must be pending, paid, failed or cancelled")
			return
		}
	}

	payments, total, err := pc.Payments.List(c.Request.Context(), filter)
	if err != nil {
		utils.LogError("Failed to list payments: %v", err)
		utils.InternalServerError(c, "Failed to fetch payments", nil)
		return
	}

	views := make([]adminPaymentView, 0, len(payments))
	for i := range payments {
		views = append(views, toAdminPaymentView(&payments[i]))
	}
	utils.LogDebug("Listed %d of %d payments", len(views), total)
	utils.SuccessWithPagination(c, "Payments retrieved successfully", views, total, pagination)
}

// GET /v1/admin/payments/:id/audit
func (pc *PaymentController) AdminPaymentAudit(c *gin.Context) {
	utils.LogInfo("AdminPaymentAudit called")
	payment, err := pc.Payments.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.NotFound(c, utils.ErrPaymentNotFound)
			return
		}
		utils.InternalServerError(c, "Failed to load payment", nil)
		return
	}

	entries, err := payment.AuditLog()
	if err != nil {
		utils.LogError("Corrupt audit log on payment %s: %v", payment.ID, err)
		utils.InternalServerError(c, "Failed to decode audit log", err.Error())
		return
	}
	utils.Success(c, "Payment audit retrieved successfully", gin.H{
		"payment": toAdminPaymentView(payment),
		"audit":   toAuditViews(entries),
	})
}

// POST /v1/admin/payments/:id/poll
func (pc *PaymentController) AdminPollPayment(c *gin.Context) {
	utils.LogInfo("AdminPollPayment called")
	res, err := pc.Poller.PollPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	utils.Success(c, utils.MsgPollCompleted, gin.H{
		"outcome": res.Outcome,
		"payment": toAdminPaymentView(res.Payment),
	})
}

// GET /v1/admin/payments/report/excel
func (pc *PaymentController) AdminReportExcel(c *gin.Context) {
	utils.LogInfo("AdminReportExcel called")
	period, payments, ok := pc.reportPayments(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=payment_report_%s.xlsx", period.Name))
	if err := report.WriteExcel(c.Writer, period, payments); err != nil {
		utils.LogError("Failed to write Excel report: %v", err)
		utils.InternalServerError(c, "Failed to write Excel file", err.Error())
		return
	}
	utils.LogInfo("Generated Excel payment report for period %s", period.Name)
}

// GET /v1/admin/payments/report/pdf
func (pc *PaymentController) AdminReportPDF(c *gin.Context) {
	utils.LogInfo("AdminReportPDF called")
	period, payments, ok := pc.reportPayments(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=payment_report_%s.pdf", period.Name))
	if err := report.WritePDF(c.Writer, period, payments); err != nil {
		utils.LogError("Failed to write PDF report: %v", err)
		utils.InternalServerError(c, "Failed to write PDF file", err.Error())
		return
	}
	utils.LogInfo("Generated PDF payment report for period %s", period.Name)
}

func (pc *PaymentController) reportPayments(c *gin.Context) (report.Period, []models.Payment, bool) {
	period, err := report.ParsePeriod(c.DefaultQuery("period", "day"), time.Now())
	if err != nil {
		utils.LogError("Invalid report period: %v", err)
		utils.BadRequest(c, "Invalid period", "Period must be day, week, or month")
		return report.Period{}, nil, false
	}

	payments, _, err := pc.Payments.List(c.Request.Context(), repository.PaymentFilter{
		CreatedFrom: period.Start,
		CreatedTo:   period.End,
	})
	if err != nil {
		utils.LogError("Failed to fetch payments for report: %v", err)
		utils.InternalServerError(c, "Failed to fetch payments", nil)
		return report.Period{}, nil, false
	}
	utils.LogDebug("Retrieved %d payments for %s report", len(payments), period.Name)
	return period, payments, true
}
