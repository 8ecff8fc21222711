package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Audit sources recorded in Payment.RawResponse
const (
	AuditSourceGatewayCreate = "gateway.create"
	AuditSourceGatewayPoll   = "gateway.poll"
	AuditSourceWebhook       = "webhook"
	AuditSourceTimeout       = "timeout"
	AuditSourceCancel        = "cancel"
)

// AuditEntry is one observed gateway, webhook or synthetic payload
type AuditEntry struct {
	Key     string          `json:"-"`
	Source  string          `json:"source"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`

	// Set only on the entry that settled the payment
	Transition PaymentStatus `json:"transition,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// AuditEntries decodes RawResponse into its keyed entries
func (p *Payment) AuditEntries() (map[string]AuditEntry, error) {
	entries := map[string]AuditEntry{}
	if len(p.RawResponse) == 0 || string(p.RawResponse) == "null" {
		return entries, nil
	}
	if err := json.Unmarshal(p.RawResponse, &entries); err != nil {
		return nil, fmt.Errorf("decode raw_response: %w", err)
	}
	for k, e := range entries {
		e.Key = k
		entries[k] = e
	}
	return entries, nil
}

// AuditLog returns the entries ordered by time, then key
func (p *Payment) AuditLog() ([]AuditEntry, error) {
	entries, err := p.AuditEntries()
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// TransitionEntry returns the entry that moved the payment to its terminal
// status, or nil while it is pending or for rows written before the marker
// existed.
func (p *Payment) TransitionEntry() (*AuditEntry, error) {
	entries, err := p.AuditEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Transition != "" {
			return &e, nil
		}
	}
	return nil, nil
}

// AppendAudit merges one entry into RawResponse under "<source>@<timestamp>".
// Existing keys are never replaced; a colliding key gets a "#n" suffix.
func (p *Payment) AppendAudit(source string, at time.Time, payload interface{}) (string, error) {
	return p.appendEntry(AuditEntry{Source: source, At: at}, payload)
}

// AppendTransition records the signal that settles the payment together
// with the status it moved to and the customer-facing reason.
func (p *Payment) AppendTransition(source string, at time.Time, payload interface{}, status PaymentStatus, reason string) (string, error) {
	if !status.IsTerminal() {
		return "", fmt.Errorf("transition to non-terminal status %q", status)
	}
	return p.appendEntry(AuditEntry{Source: source, At: at, Transition: status, Reason: reason}, payload)
}

func (p *Payment) appendEntry(entry AuditEntry, payload interface{}) (string, error) {
	raw, err := auditPayload(payload)
	if err != nil {
		return "", err
	}
	entries, err := p.AuditEntries()
	if err != nil {
		return "", err
	}

	entry.At = entry.At.UTC()
	entry.Payload = raw
	base := fmt.Sprintf("%s@%s", entry.Source, entry.At.Format(time.RFC3339Nano))
	key := base
	for n := 2; ; n++ {
		if _, taken := entries[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s#%d", base, n)
	}
	entries[key] = entry

	merged, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode raw_response: %w", err)
	}
	p.RawResponse = datatypes.JSON(merged)
	return key, nil
}

func auditPayload(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if json.Valid(v) {
			return v, nil
		}
		return json.Marshal(string(v))
	case []byte:
		if json.Valid(v) {
			return json.RawMessage(v), nil
		}
		// Non-JSON bodies (HTML error pages, truncated responses) are kept as text
		return json.Marshal(string(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode audit payload: %w", err)
		}
		return b, nil
	}
}
