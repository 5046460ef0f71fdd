package mailer

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	mailtpl "github.com/oksasatya/chambitas-auth/pkg/mailer/templates"
)

// MailgunSender renders the verification template and delivers it directly.
type MailgunSender struct {
	Transport Transport
	AppName   string
}

func NewMailgunSender(t Transport, appName string) *MailgunSender {
	return &MailgunSender{Transport: t, AppName: appName}
}

func (s *MailgunSender) SendVerification(ctx context.Context, to, subject, link string) error {
	text, html, err := mailtpl.Render(mailtpl.VerifyEmail, mailtpl.VerifyEmailData{AppName: s.AppName, Email: to, Link: link})
	if err != nil {
		return err
	}
	return s.Transport.Send(ctx, to, subject, text, html)
}

// Publisher is satisfied by helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueSender hands the verification email to the email worker through RabbitMQ.
// A nil error means the job was accepted by the broker, not that it was delivered.
type QueueSender struct {
	Pub     Publisher
	AppName string
}

func NewQueueSender(pub Publisher, appName string) *QueueSender {
	return &QueueSender{Pub: pub, AppName: appName}
}

func (s *QueueSender) SendVerification(ctx context.Context, to, subject, link string) error {
	if s.Pub == nil {
		return errors.New("email queue not configured")
	}
	job := EmailJob{
		To:       to,
		Subject:  subject,
		Template: mailtpl.VerifyEmail,
		Data:     mailtpl.VerifyEmailData{AppName: s.AppName, Email: to, Link: link}.ToMap(),
	}
	return s.Pub.PublishJSON(ctx, job)
}

// LogSender only logs the link. Used when MAIL_SEND_ENABLED=false or in development.
type LogSender struct {
	Logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{Logger: logger}
}

func (s *LogSender) SendVerification(_ context.Context, to, subject, link string) error {
	s.Logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"link":    link,
	}).Info("verification email (not sent, log transport)")
	return nil
}
