package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestTemplateEngine_RendersReminder(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateAppointmentReminder, map[string]string{
		"patient_name":     "Nguyễn Văn An",
		"doctor_name":      "Trần Thị Bình",
		"appointment_time": "09:30 15/03/2024",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Nhắc lịch khám" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{"Nguyễn Văn An", "Trần Thị Bình", "09:30 15/03/2024"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q, got %q", want, body)
		}
	}
}

func TestTemplateEngine_MissingDataLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	_, body, _ := e.Render(TemplateAppointmentReminder, map[string]string{"patient_name": "An"})
	if !strings.Contains(body, "{{doctor_name}}") {
		t.Errorf("expected unreplaced placeholder, got %q", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("nope", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestTemplateEngine_RegisterOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: TemplateAppointmentReminder, Subject: "Reminder {{x}}", Body: "b"})
	subject, _, _ := e.Render(TemplateAppointmentReminder, map[string]string{"x": "1"})
	if subject != "Reminder 1" {
		t.Errorf("expected override, got %q", subject)
	}
}

func TestManager_SendFromTemplate(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewManager(sender, NewTemplateEngine(), zerolog.Nop())

	n, err := m.SendFromTemplate(context.Background(), TemplateAppointmentReminder,
		map[string]string{"patient_name": "An"}, "an@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != "sent" || n.SentAt == nil {
		t.Errorf("expected sent notification, got %+v", n)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "an@example.com" || calls[0].Subject != "Nhắc lịch khám" {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestManager_SendFailureRecorded(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "relay down"}
	m := NewManager(sender, NewTemplateEngine(), zerolog.Nop())

	n, err := m.SendFromTemplate(context.Background(), TemplateAppointmentReminder, nil, "an@example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if n == nil || n.Status != "failed" || n.Error != "relay down" {
		t.Errorf("expected failed notification, got %+v", n)
	}
}

func TestManager_RequiresRecipient(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewManager(sender, NewTemplateEngine(), zerolog.Nop())

	if _, err := m.SendFromTemplate(context.Background(), TemplateAppointmentReminder, nil, "  "); err == nil {
		t.Fatal("expected error for blank recipient")
	}
	if len(sender.Calls()) != 0 {
		t.Error("sender should not be called")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("clinic@example.com", "an@example.com", "Nhắc lịch khám", "line1\nline2"))
	if !strings.Contains(msg, "Subject: =?utf-8?q?") {
		t.Errorf("expected encoded subject, got %q", msg)
	}
	if !strings.Contains(msg, "Content-Type: text/plain; charset=UTF-8\r\n") {
		t.Error("expected UTF-8 content type")
	}
	if !strings.HasSuffix(msg, "line1\r\nline2") {
		t.Errorf("expected CRLF body, got %q", msg)
	}
}

func TestLogEmailSender(t *testing.T) {
	var buf strings.Builder
	s := LogEmailSender{Logger: zerolog.New(&buf)}
	if err := s.SendEmail(context.Background(), "an@example.com", "hi", "body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "an@example.com") {
		t.Errorf("expected recipient in log, got %s", buf.String())
	}
}
