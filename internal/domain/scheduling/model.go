package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/lifecycle"
)

// Appointment status codes as stored.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Display labels shown to clinic staff.
var statusLabels = map[string]string{
	StatusScheduled: "Đã đặt",
	StatusCompleted: "Đã khám",
	StatusCancelled: "Đã hủy",
}

// StatusLabel returns the display label for a status code.
func StatusLabel(code string) string {
	return statusLabels[code]
}

// ParseStatus accepts a status code or its display label.
func ParseStatus(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for code, label := range statusLabels {
		if strings.EqualFold(s, code) || s == label {
			return code, true
		}
	}
	return "", false
}

// Scheduled is the only status that can change; completed and cancelled are final.
func canTransition(from, to string) bool {
	return from == StatusScheduled && (to == StatusCompleted || to == StatusCancelled)
}

type Appointment struct {
	ID           uuid.UUID       `json:"appointment_id"`
	PatientID    uuid.UUID       `json:"patient_id"`
	PatientName  string          `json:"patient_name,omitempty"`
	DoctorID     uuid.UUID       `json:"doctor_id"`
	DoctorName   string          `json:"doctor_name,omitempty"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	Status       string          `json:"status"`
	StatusLabel  string          `json:"status_label"`
	Notes        string          `json:"notes,omitempty"`
	ReminderSent bool            `json:"reminder_sent"`
	Lifecycle    lifecycle.State `json:"lifecycle"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type AppointmentRequest struct {
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes"`
}

// ReminderCandidate is an upcoming appointment whose reminder has not gone out.
type ReminderCandidate struct {
	AppointmentID uuid.UUID
	ScheduledAt   time.Time
	PatientName   string
	PatientEmail  string
	DoctorName    string
}
