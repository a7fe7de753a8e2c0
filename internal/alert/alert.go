// Package alert forwards notifiable leads to the downstream alert
// endpoint. Delivery problems are reported in the Outcome, never as
// errors, so a failed alert cannot undo a stored lead.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/resilience"
)

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 10 * time.Second

// Payload is the body posted to the alert endpoint.
type Payload struct {
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	LeadType        string     `json:"lead_type"`
	City            *string    `json:"city"`
	Description     *string    `json:"description"`
	Location        *string    `json:"location"`
	PhysicalAddress *string    `json:"physical_address"`
	MessageSentAt   *time.Time `json:"message_sent_at"`
}

// Outcome reports what happened to one alert.
type Outcome struct {
	OK      bool            `json:"ok"`
	Skipped bool            `json:"skipped,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Err     error           `json:"-"`
	Payload Payload         `json:"payload"`
}

// Notifier delivers lead alerts.
type Notifier interface {
	Notify(ctx context.Context, lead model.MergedLead) Outcome
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithCategories replaces the lead type table.
func WithCategories(c *Categories) Option {
	return func(d *Dispatcher) { d.categories = c }
}

// Dispatcher posts alerts as JSON to a webhook URL.
type Dispatcher struct {
	url        string
	client     *http.Client
	categories *Categories
}

// NewDispatcher creates a Dispatcher for url. A zero timeout uses
// DefaultTimeout.
func NewDispatcher(url string, timeout time.Duration, opts ...Option) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		categories: DefaultCategories(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// BuildPayload normalizes lead into the wire shape. Names are title cased
// since directories report them in capitals.
func (d *Dispatcher) BuildPayload(lead model.MergedLead) Payload {
	return Payload{
		Name:            model.TitleName(lead.Name),
		Phone:           strings.TrimSpace(lead.Phone),
		LeadType:        d.categories.Canonical(lead.LeadType),
		City:            optional(lead.City),
		Description:     optional(lead.Description()),
		Location:        optional(lead.Location),
		PhysicalAddress: optional(lead.PhysicalAddress),
		MessageSentAt:   lead.MessageSentAt,
	}
}

// Notify implements Notifier. Missing name, phone or lead type skips the
// call entirely.
func (d *Dispatcher) Notify(ctx context.Context, lead model.MergedLead) Outcome {
	p := d.BuildPayload(lead)
	log := zap.L().With(zap.String("source_id", lead.SourceID))

	if p.Name == "" || p.Phone == "" || p.LeadType == "" {
		log.Info("alert: skipped, missing name, phone or lead type")
		return Outcome{Skipped: true, Reason: "missing name/phone/lead_type", Payload: p}
	}
	if d.url == "" {
		log.Info("alert: skipped, no endpoint configured")
		return Outcome{Skipped: true, Reason: "no alert url", Payload: p}
	}

	data, err := d.post(ctx, p)
	if err != nil {
		log.Warn("alert: delivery failed", zap.Error(err))
		return Outcome{Err: err, Reason: err.Error(), Payload: p}
	}
	log.Info("alert: delivered", zap.String("lead_type", p.LeadType))
	return Outcome{OK: true, Data: data, Payload: p}
}

func (d *Dispatcher) post(ctx context.Context, p Payload) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "alert: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "alert: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "alert: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "alert: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &resilience.StatusError{Service: "alert", StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	if len(raw) == 0 || !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		return quoted, nil
	}
	return raw, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
