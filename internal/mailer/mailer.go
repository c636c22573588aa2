package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"

	"pathpatrol/internal/model"
	"pathpatrol/internal/obs"

	"github.com/wneessen/go-mail"
)

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Server   string
	Port     int
	From     string
	Password string
}

// SMTPSender sends through an authenticated STARTTLS relay.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Enabled reports whether credentials are configured.
func (s *SMTPSender) Enabled() bool {
	return s.cfg.Password != ""
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !s.Enabled() {
		return fmt.Errorf("%w: email is not configured", model.ErrExternalService)
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("%w: invalid recipient address: %v", model.ErrValidation, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(s.cfg.Server,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.From),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", model.ErrExternalService, err)
	}
	return nil
}

var statusTemplate = template.Must(template.New("status").Parse(`<html>
<body style="font-family: Arial, sans-serif;">
  <h2>Complaint #{{.ComplaintID}} status update</h2>
  {{if .Location}}<p>Location: {{.Location}}</p>{{end}}
  <p>Status changed from <strong>{{.Old}}</strong> to <strong>{{.New}}</strong>.</p>
  <p>Thank you for helping keep our roads safe.</p>
  <p>PathPatrol</p>
</body>
</html>`))

// StatusChangeEmail renders the subject and HTML body for a status change.
func StatusChangeEmail(change model.StatusChange) (string, string, error) {
	subject := fmt.Sprintf("PathPatrol: Complaint #%d - Status Updated to %s", change.ComplaintID, change.NewStatus.Title())

	var body bytes.Buffer
	err := statusTemplate.Execute(&body, struct {
		ComplaintID int64
		Location    string
		Old         string
		New         string
	}{change.ComplaintID, change.Location, change.OldStatus.Title(), change.NewStatus.Title()})
	if err != nil {
		return "", "", err
	}
	return subject, body.String(), nil
}

// Notifier mails status changes directly.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) NotifyStatusChange(ctx context.Context, change model.StatusChange) error {
	if change.NotifyEmail == "" {
		return nil
	}
	subject, body, err := StatusChangeEmail(change)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, change.NotifyEmail, subject, body); err != nil {
		obs.NotificationsSent.WithLabelValues("failed").Inc()
		return err
	}
	obs.NotificationsSent.WithLabelValues("sent").Inc()
	log.Printf("Sent status update for complaint %d to %s", change.ComplaintID, change.NotifyEmail)
	return nil
}
