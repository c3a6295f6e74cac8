package worker

import (
	"context"
	"time"

	"github.com/odontosimples/clinic-api/internal/email"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/pkg/clock"
	"github.com/odontosimples/clinic-api/pkg/logger"
)

type ReminderConfig struct {
	// Lead is how far ahead of the start time the reminder goes out.
	Lead time.Duration
	// PollInterval controls how often the scan runs.
	PollInterval time.Duration
}

func (c *ReminderConfig) applyDefaults() {
	if c.Lead <= 0 {
		c.Lead = 24 * time.Hour
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Minute
	}
}

// ReminderWorker mails confirmation reminders for appointments that are
// still unconfirmed close to their start time.
type ReminderWorker struct {
	appointments  repository.AppointmentRepository
	patients      repository.PatientRepository
	practitioners repository.PractitionerRepository
	sender        email.Sender
	config        ReminderConfig
	clock         clock.Clock
	logger        *logger.Logger

	// lastScanEnd bounds each window so the same appointment is not
	// reminded on every poll.
	lastScanEnd time.Time
}

func NewReminderWorker(
	appointments repository.AppointmentRepository,
	patients repository.PatientRepository,
	practitioners repository.PractitionerRepository,
	sender email.Sender,
	config ReminderConfig,
	clk clock.Clock,
	log *logger.Logger,
) *ReminderWorker {
	config.applyDefaults()
	return &ReminderWorker{
		appointments:  appointments,
		patients:      patients,
		practitioners: practitioners,
		sender:        sender,
		config:        config,
		clock:         clk,
		logger:        log,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info("starting reminder worker", "lead", w.config.Lead.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down reminder worker")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "reminder scan failed")
			}
		}
	}
}

// RunOnce scans one window and sends reminders for it. Windows are
// contiguous across runs: each scan starts where the previous ended.
func (w *ReminderWorker) RunOnce(ctx context.Context) error {
	now := w.clock.Now()
	from := now
	if w.lastScanEnd.After(from) {
		from = w.lastScanEnd
	}
	to := now.Add(w.config.Lead)
	if !to.After(from) {
		return nil
	}

	due, err := w.appointments.FindDueForReminder(ctx, from, to)
	if err != nil {
		return err
	}
	w.lastScanEnd = to

	for _, apt := range due {
		patient, err := w.patients.Get(ctx, apt.PatientID)
		if err != nil {
			w.logger.Error(err, "failed to load patient for reminder", "appointment_id", apt.ID.String())
			continue
		}
		if patient.Email == "" {
			continue
		}
		practitioner, err := w.practitioners.Get(ctx, apt.PractitionerID)
		if err != nil {
			w.logger.Error(err, "failed to load practitioner for reminder", "appointment_id", apt.ID.String())
			continue
		}

		if err := w.sender.SendConfirmationReminder(patient.Email, apt, patient.Name, practitioner.Name); err != nil {
			w.logger.Error(err, "failed to send reminder",
				"appointment_id", apt.ID.String(), "patient_id", patient.ID.String())
			continue
		}
		w.logger.Info("reminder sent",
			"appointment_id", apt.ID.String(), "start_time", apt.StartTime.Format(time.RFC3339))
	}
	return nil
}
