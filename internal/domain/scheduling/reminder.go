package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/notification"
)

// ReminderTimeLayout formats the appointment time in reminder emails.
const ReminderTimeLayout = "15:04 02/01/2006"

// Notifier renders and delivers a templated message.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type ReminderConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// Window is how far ahead of now appointments are picked up.
	Window time.Duration
}

// ReminderWorker emails patients ahead of their appointments and marks each
// appointment so the reminder goes out once. A failed send leaves the flag
// unset and is retried on the next cycle.
type ReminderWorker struct {
	store    ReminderStore
	notifier Notifier
	cfg      ReminderConfig
	logger   zerolog.Logger
	now      func() time.Time
}

func NewReminderWorker(store ReminderStore, notifier Notifier, cfg ReminderConfig, logger zerolog.Logger) *ReminderWorker {
	return &ReminderWorker{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reminder").Logger(),
		now:      time.Now,
	}
}

// Start waits for the startup delay, then runs a cycle every interval.
// It blocks until ctx is cancelled.
func (w *ReminderWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.cfg.Interval).Dur("window", w.cfg.Window).Msg("reminder worker starting")

	if w.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.StartupDelay):
		}
	}

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("reminder worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single cycle and returns how many reminders were sent.
// Errors are logged; one bad appointment does not stop the others.
func (w *ReminderWorker) RunOnce(ctx context.Context) int {
	now := w.now()
	due, err := w.store.DueForReminder(ctx, now, now.Add(w.cfg.Window))
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to load appointments due for reminder")
		return 0
	}
	if len(due) == 0 {
		w.logger.Debug().Msg("no upcoming appointments need a reminder")
		return 0
	}

	sent := 0
	for _, c := range due {
		if ctx.Err() != nil {
			break
		}
		log := w.logger.With().Str("appointment_id", c.AppointmentID.String()).Logger()
		if c.PatientEmail == "" {
			log.Debug().Msg("patient has no email, reminder skipped")
			continue
		}

		data := map[string]string{
			"patient_name":     c.PatientName,
			"doctor_name":      c.DoctorName,
			"appointment_time": c.ScheduledAt.Local().Format(ReminderTimeLayout),
		}
		if _, err := w.notifier.SendFromTemplate(ctx, notification.TemplateAppointmentReminder, data, c.PatientEmail); err != nil {
			metrics.RecordReminderFailed()
			log.Error().Err(err).Msg("failed to send reminder")
			continue
		}
		metrics.RecordReminderSent()
		sent++

		if err := w.store.MarkReminderSent(ctx, c.AppointmentID); err != nil {
			// The email went out; the next cycle may send it again.
			log.Error().Err(err).Msg("reminder sent but not marked")
		}
	}
	w.logger.Info().Int("due", len(due)).Int("sent", sent).Msg("reminder cycle finished")
	return sent
}
