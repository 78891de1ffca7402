package email

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-settings/internal/config"
	"github.com/jwalitptl/clinic-settings/internal/model"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
)

type Service interface {
	SendCustom(ctx context.Context, to []string, subject string, content string) error
}

// SMTPService sends mail through one SMTP relay.
type SMTPService struct {
	from string
	send func(msgs ...*gomail.Message) error
}

func NewSMTPService(cfg config.MailConfig) *SMTPService {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPService{from: cfg.From, send: d.DialAndSend}
}

// NewServiceWithSender is used when mail goes through something other than a
// dialer, such as tests.
func NewServiceWithSender(from string, sender gomail.Sender) *SMTPService {
	return &SMTPService{
		from: from,
		send: func(msgs ...*gomail.Message) error { return gomail.Send(sender, msgs...) },
	}
}

func (s *SMTPService) SendCustom(ctx context.Context, to []string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// FailureNotifier mails operators when a save leaves something unsaved.
type FailureNotifier struct {
	mail   Service
	to     []string
	logger *logger.Logger
}

func NewFailureNotifier(mail Service, to []string, log *logger.Logger) *FailureNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &FailureNotifier{mail: mail, to: to, logger: log}
}

func (n *FailureNotifier) SaveCompleted(ctx context.Context, outcome model.SaveOutcome) {
	if outcome.Status != model.SaveStatusPartialFailure && outcome.Status != model.SaveStatusFailed {
		return
	}
	subject := fmt.Sprintf("[clinic %d] settings save %s", outcome.ClinicID, strings.ReplaceAll(string(outcome.Status), "_", " "))
	if err := n.mail.SendCustom(ctx, n.to, subject, FailureBody(outcome)); err != nil {
		n.logger.WithContext(ctx).Error(err, "failed to send save failure email",
			"clinic_id", outcome.ClinicID,
			"session_id", outcome.SessionID.String())
	}
}

// FailureBody renders the report as plain text.
func FailureBody(outcome model.SaveOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Clinic: %d\n", outcome.ClinicID)
	fmt.Fprintf(&b, "Session: %s\n", outcome.SessionID)
	fmt.Fprintf(&b, "Finished: %s\n\n", outcome.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	for _, s := range outcome.Report.Sections {
		fmt.Fprintf(&b, "%s: %s (%d/%d saved)\n", s.Domain.Title(), s.Status, s.Succeeded, s.Attempted)
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  - %s\n", e.String())
		}
	}
	return b.String()
}
