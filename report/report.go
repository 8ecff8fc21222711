// Package report renders the payment reconciliation report for admins
package report

import (
	"fmt"
	"time"

	"github.com/Govind-619/paysync/models"
	"github.com/shopspring/decimal"
)

// Period bounds the payments included in a report
type Period struct {
	Name  string
	Start time.Time
	End   time.Time
}

// ParsePeriod resolves "day", "week" or "month" relative to now
func ParsePeriod(name string, now time.Time) (Period, error) {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 999999999, now.Location())
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch name {
	case "day":
		return Period{Name: name, Start: startOfDay, End: endOfDay}, nil
	case "week":
		return Period{Name: name, Start: startOfDay.AddDate(0, 0, -6), End: endOfDay}, nil
	case "month":
		return Period{Name: name, Start: startOfDay.AddDate(0, 0, -30), End: endOfDay}, nil
	default:
		return Period{}, fmt.Errorf("invalid period %q: must be day, week, or month", name)
	}
}

func (p Period) String() string {
	return fmt.Sprintf("%s | %s to %s", p.Name, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}

// Summary aggregates one report
type Summary struct {
	Total          int
	Pending        int
	Paid           int
	Failed         int
	TimedOut       int // failed by the timeout tick, included in Failed
	Cancelled      int
	PaidAmount     decimal.Decimal
	TotalPolls     int
	AverageLatency time.Duration // created to last update, paid payments only
}

// Row is one payment line of a report
type Row struct {
	ID                string
	OrderRef          string
	Method            string
	Amount            decimal.Decimal
	ProviderReference string
	Status            string
	PollCount         int
	Signals           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Build turns payments into rows and a summary
func Build(payments []models.Payment) ([]Row, Summary) {
	rows := make([]Row, 0, len(payments))
	summary := Summary{PaidAmount: decimal.Zero}
	var latency time.Duration

	for i := range payments {
		p := &payments[i]
		entries, _ := p.AuditEntries()

		row := Row{
			ID:                p.ID,
			OrderRef:          "-",
			Method:            p.Method,
			Amount:            p.Amount,
			ProviderReference: p.ProviderRef(),
			Status:            string(p.Status),
			PollCount:         p.PollCount,
			Signals:           len(entries),
			CreatedAt:         p.CreatedAt,
			UpdatedAt:         p.UpdatedAt,
		}
		if p.OrderRef != nil {
			row.OrderRef = fmt.Sprintf("%d", *p.OrderRef)
		}

		summary.Total++
		summary.TotalPolls += p.PollCount
		switch p.Status {
		case models.PaymentStatusPending:
			summary.Pending++
		case models.PaymentStatusPaid:
			summary.Paid++
			summary.PaidAmount = summary.PaidAmount.Add(p.Amount)
			latency += p.UpdatedAt.Sub(p.CreatedAt)
		case models.PaymentStatusFailed:
			summary.Failed++
			if timedOut(entries) {
				summary.TimedOut++
				row.Status += " (timeout)"
			}
		case models.PaymentStatusCancelled:
			summary.Cancelled++
		}
		rows = append(rows, row)
	}

	if summary.Paid > 0 {
		summary.AverageLatency = (latency / time.Duration(summary.Paid)).Round(time.Second)
	}
	return rows, summary
}

func timedOut(entries map[string]models.AuditEntry) bool {
	for _, e := range entries {
		if e.Source == models.AuditSourceTimeout {
			return true
		}
	}
	return false
}

func (s Summary) lines() [][]string {
	return [][]string{
		{"Total Payments", fmt.Sprintf("%d", s.Total)},
		{"Paid", fmt.Sprintf("%d", s.Paid)},
		{"Failed", fmt.Sprintf("%d", s.Failed)},
		{"Failed by Timeout", fmt.Sprintf("%d", s.TimedOut)},
		{"Cancelled", fmt.Sprintf("%d", s.Cancelled)},
		{"Still Pending", fmt.Sprintf("%d", s.Pending)},
		{"Paid Amount", s.PaidAmount.StringFixed(2)},
		{"Gateway Polls", fmt.Sprintf("%d", s.TotalPolls)},
		{"Avg. Time to Paid", s.AverageLatency.String()},
	}
}

var headers = []string{"Payment ID", "Order", "Method", "Amount", "Provider Ref", "Status", "Polls", "Signals", "Created", "Updated"}
