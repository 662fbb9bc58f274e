// Package notification renders message templates and delivers them by email.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TemplateAppointmentReminder is sent by the reminder worker ahead of a visit.
const TemplateAppointmentReminder = "appointment-reminder"

// Notification is a single rendered outbound message and its delivery outcome.
type Notification struct {
	ID         string     `json:"id"`
	Recipient  string     `json:"recipient"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	TemplateID string     `json:"template_id,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// EmailSender delivers a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable message with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateAppointmentReminder,
		Subject: "Nhắc lịch khám",
		Body: "Xin chào {{patient_name}},\n\n" +
			"Bạn có lịch khám với bác sĩ {{doctor_name}} vào lúc {{appointment_time}}.\n" +
			"Vui lòng đến đúng giờ. Nếu không thể đến, hãy liên hệ phòng khám để hủy lịch.\n",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render performs {{key}} replacement on the subject and body of templateID.
// Placeholders without data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Manager renders templates and hands the result to an EmailSender.
type Manager struct {
	email     EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
	now       func() time.Time
}

func NewManager(email EmailSender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	return &Manager{
		email:     email,
		templates: tpl,
		logger:    logger.With().Str("component", "notification").Logger(),
		now:       time.Now,
	}
}

// SendFromTemplate renders templateID with data and emails it to recipient.
// The returned Notification records the outcome even when sending fails.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		Status:     "pending",
		CreatedAt:  m.now().UTC(),
	}

	if err := m.email.SendEmail(ctx, recipient, subject, body); err != nil {
		n.Status = "failed"
		n.Error = err.Error()
		m.logger.Warn().Err(err).Str("template", templateID).Str("notification_id", n.ID).Msg("email delivery failed")
		return n, fmt.Errorf("send email: %w", err)
	}

	sentAt := m.now().UTC()
	n.Status = "sent"
	n.SentAt = &sentAt
	m.logger.Debug().Str("template", templateID).Str("notification_id", n.ID).Msg("email sent")
	return n, nil
}
