package email

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/pkg/logger"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers patient-facing mail. It is an interface so the
// reminder worker can be tested without an SMTP server.
type Sender interface {
	SendConfirmationReminder(to string, apt *model.Appointment, patientName, practitionerName string) error
}

type Service struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

func NewService(cfg Config, log *logger.Logger) *Service {
	return &Service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: log,
	}
}

// SendConfirmationReminder asks the patient to confirm an appointment
// starting within the next day.
func (s *Service) SendConfirmationReminder(to string, apt *model.Appointment, patientName, practitionerName string) error {
	if to == "" {
		return fmt.Errorf("patient has no email address")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Please confirm your appointment")
	m.SetBody("text/html", fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>This is a reminder of your appointment with %s on <b>%s</b>.</p>"+
			"<p>Please reply or call the clinic to confirm.</p>",
		patientName,
		practitionerName,
		apt.StartTime.Format("Monday, 02 Jan 2006 at 15:04"),
	))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	return nil
}
