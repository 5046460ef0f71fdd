package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	mailtpl "github.com/oksasatya/chambitas-auth/pkg/mailer/templates"
)

// Outcome tells the consumer loop what to do with a delivery.
type Outcome int

const (
	Ack Outcome = iota
	Requeue
	Drop
)

var errEmptyJob = errors.New("job has neither template nor subject with body")

// HeaderAttempts counts failed deliveries of a job.
const HeaderAttempts = "x-attempts"

// Republisher puts a failed job back on the queue with updated headers.
// helpers.RabbitPublisher satisfies it.
type Republisher interface {
	PublishRaw(ctx context.Context, body []byte, headers amqp.Table) error
}

// Worker renders queued EmailJobs and delivers them through a Transport.
type Worker struct {
	Transport   Transport
	Logger      *logrus.Logger
	SendTimeout time.Duration
	// Retry republishes failed jobs with an attempt count. Without it a
	// failed job is requeued once and dropped on its redelivery.
	Retry       Republisher
	MaxAttempts int
}

func NewWorker(t Transport, logger *logrus.Logger) *Worker {
	return &Worker{Transport: t, Logger: logger, SendTimeout: 15 * time.Second, MaxAttempts: 5}
}

// Handle processes one raw message. Malformed jobs are dropped, delivery
// failures are requeued so another attempt can be made.
func (w *Worker) Handle(ctx context.Context, body []byte) Outcome {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.Logger.WithError(err).Warn("bad email job")
		return Drop
	}
	log := w.Logger.WithFields(logrus.Fields{"template": job.Template})

	subject, text, html, err := renderJob(job)
	if err != nil {
		log.WithError(err).Error("render email job failed")
		return Drop
	}

	c, cancel := context.WithTimeout(ctx, w.SendTimeout)
	defer cancel()
	if err := w.Transport.Send(c, job.To, subject, text, html); err != nil {
		log.WithError(err).Warn("email send failed, requeueing")
		return Requeue
	}
	log.Debug("email sent")
	return Ack
}

// Run consumes deliveries until the channel closes or ctx is done.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			w.settle(ctx, msg, w.Handle(ctx, msg.Body))
		}
	}
}

// settle acks, retries or drops msg. Dropped messages go to the queue's
// dead-letter exchange when one is configured.
func (w *Worker) settle(ctx context.Context, msg amqp.Delivery, outcome Outcome) {
	switch outcome {
	case Ack:
		_ = msg.Ack(false)
		return
	case Drop:
		_ = msg.Nack(false, false)
		return
	}

	attempts := attemptsOf(msg.Headers) + 1
	log := w.Logger.WithField("attempts", attempts)
	if attempts >= w.MaxAttempts {
		log.Error("email job failed too many times, dropping")
		_ = msg.Nack(false, false)
		return
	}
	if w.Retry == nil {
		if msg.Redelivered {
			log.Error("email job failed after redelivery, dropping")
			_ = msg.Nack(false, false)
			return
		}
		_ = msg.Nack(false, true)
		return
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderAttempts] = int32(attempts)
	if err := w.Retry.PublishRaw(ctx, msg.Body, headers); err != nil {
		log.WithError(err).Warn("republish failed, requeueing")
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func attemptsOf(h amqp.Table) int {
	switch v := h[HeaderAttempts].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func renderJob(job EmailJob) (subject, text, html string, err error) {
	if job.To == "" {
		return "", "", "", errors.New("job has no recipient")
	}
	if job.Template == "" {
		if job.Subject == "" || (job.Text == "" && job.HTML == "") {
			return "", "", "", errEmptyJob
		}
		return job.Subject, job.Text, job.HTML, nil
	}
	text, html, err = mailtpl.Render(job.Template, job.Data)
	if err != nil {
		return "", "", "", err
	}
	subject = job.Subject
	if subject == "" {
		subject = "Notification"
	}
	return subject, text, html, nil
}
