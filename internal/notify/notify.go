package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"academy/internal/errreport"
	"academy/internal/metrics"
	"academy/internal/model"
)

// Template parameter names used by the feedback template.
const (
	ParamStudentName = "student_name"
	ParamLink        = "link"
)

// Message is one templated guardian message.
type Message struct {
	Phone      string
	TemplateID string
	Parameters map[string]string
}

// Params fills the feedback template.
type Params struct {
	StudentName string
	ReportLink  string
}

// Receipt is the provider acknowledgement. Raw is the untouched response.
type Receipt struct {
	RequestID string
	Raw       json.RawMessage
}

// Sender delivers a message to the provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Dispatcher normalizes and sends guardian notifications.
type Dispatcher struct {
	sender   Sender
	metrics  *metrics.Metrics
	reporter errreport.Reporter
}

// NewDispatcher wires a dispatcher. metrics and reporter may be nil.
func NewDispatcher(sender Sender, m *metrics.Metrics, reporter errreport.Reporter) *Dispatcher {
	if reporter == nil {
		reporter = errreport.Nop{}
	}
	return &Dispatcher{sender: sender, metrics: m, reporter: reporter}
}

// NotifyGuardian sends the feedback template for a new entry.
func (d *Dispatcher) NotifyGuardian(ctx context.Context, phone, templateID string, p Params) error {
	_, err := d.Send(ctx, Message{
		Phone:      phone,
		TemplateID: templateID,
		Parameters: map[string]string{
			ParamStudentName: p.StudentName,
			ParamLink:        p.ReportLink,
		},
	})
	return err
}

// Send validates and delivers msg. Failures are never retried here.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (*Receipt, error) {
	msg.Phone = NormalizePhone(msg.Phone)
	msg.TemplateID = strings.TrimSpace(msg.TemplateID)
	if msg.Phone == "" {
		return nil, model.Invalid("phone required")
	}
	if msg.TemplateID == "" {
		return nil, model.Invalid("templateId required")
	}
	if link, ok := msg.Parameters[ParamLink]; ok {
		params := make(map[string]string, len(msg.Parameters))
		for k, v := range msg.Parameters {
			params[k] = v
		}
		params[ParamLink] = StripScheme(link)
		msg.Parameters = params
	}

	receipt, err := d.sender.Send(ctx, msg)
	switch {
	case err == nil:
		if receipt == nil {
			receipt = &Receipt{}
		}
		d.count("sent")
		log.Printf("notify: sent template=%s to=%s request=%s", msg.TemplateID, maskPhone(msg.Phone), receipt.RequestID)
	case errors.Is(err, model.ErrMisconfigured):
		d.count("simulated")
		log.Printf("notify: provider keys missing, skipping send template=%s", msg.TemplateID)
	default:
		d.count("failed")
		log.Printf("notify: send failed template=%s to=%s: %v", msg.TemplateID, maskPhone(msg.Phone), err)
		d.reporter.Report(err, map[string]any{"template": msg.TemplateID})
	}
	return receipt, err
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.Notifications.WithLabelValues(outcome).Inc()
	}
}

// NormalizePhone keeps only digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripScheme drops a leading http:// or https:// from a link; template
// buttons carry their own scheme.
func StripScheme(link string) string {
	link = strings.TrimSpace(link)
	for _, p := range []string{"https://", "http://"} {
		if len(link) >= len(p) && strings.EqualFold(link[:len(p)], p) {
			return link[len(p):]
		}
	}
	return link
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
