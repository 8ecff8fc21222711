package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/Govind-619/paysync/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayments(t *testing.T) []models.Payment {
	t.Helper()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	order := uint(3)

	paid := models.Payment{ID: "p-paid", OrderRef: &order, Method: "mpesa", Amount: decimal.NewFromInt(50),
		Status: models.PaymentStatusPaid, PollCount: 2, CreatedAt: created, UpdatedAt: created.Add(30 * time.Second)}
	_, err := paid.AppendAudit(models.AuditSourceWebhook, created.Add(30*time.Second), map[string]string{"status": "succeeded"})
	require.NoError(t, err)

	timedOut := models.Payment{ID: "p-timeout", Method: "card", Amount: decimal.NewFromInt(20),
		Status: models.PaymentStatusFailed, CreatedAt: created, UpdatedAt: created.Add(16 * time.Minute)}
	_, err = timedOut.AppendAudit(models.AuditSourceTimeout, created.Add(16*time.Minute), map[string]bool{"synthetic": true})
	require.NoError(t, err)

	pending := models.Payment{ID: "p-pending", Method: "mpesa", Amount: decimal.NewFromInt(5),
		Status: models.PaymentStatusPending, PollCount: 1, CreatedAt: created, UpdatedAt: created}

	return []models.Payment{paid, timedOut, pending}
}

func TestBuild(t *testing.T) {
	rows, s := Build(samplePayments(t))
	require.Len(t, rows, 3)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Paid)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.TimedOut)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 3, s.TotalPolls)
	assert.Equal(t, "50.00", s.PaidAmount.StringFixed(2))
	assert.Equal(t, 30*time.Second, s.AverageLatency)

	assert.Equal(t, "3", rows[0].OrderRef)
	assert.Equal(t, 1, rows[0].Signals)
	assert.Equal(t, "-", rows[1].OrderRef)
	assert.Equal(t, "failed (timeout)", rows[1].Status)
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	day, err := ParsePeriod("day", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), day.Start)

	week, err := ParsePeriod("week", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), week.Start)
	assert.True(t, week.End.After(now))

	_, err = ParsePeriod("year", now)
	assert.Error(t, err)
}

func TestWriteExcelAndPDF(t *testing.T) {
	period, err := ParsePeriod("month", time.Now())
	require.NoError(t, err)

	var xlsxBuf bytes.Buffer
	require.NoError(t, WriteExcel(&xlsxBuf, period, samplePayments(t)))
	assert.True(t, bytes.HasPrefix(xlsxBuf.Bytes(), []byte("PK")), "xlsx is a zip archive")

	var pdfBuf bytes.Buffer
	require.NoError(t, WritePDF(&pdfBuf, period, samplePayments(t)))
	assert.True(t, bytes.HasPrefix(pdfBuf.Bytes(), []byte("%PDF")))
}
