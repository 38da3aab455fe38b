// Package mailqueue implements an authgate.Mailer that hands mail jobs to a
// RabbitMQ queue. Rendering and SMTP delivery belong to the consumer on the
// other side of the broker.
package mailqueue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue mail jobs land on when no name is configured.
const DefaultQueue = "authgate.mail"

// Job is the wire shape published per mail. Consumers render Template with
// Payload and deliver to To.
type Job struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Payload  map[string]string `json:"payload,omitempty"`
	QueuedAt time.Time         `json:"queued_at"`
}

// Channel is the subset of *amqp.Channel the mailer needs. Narrowed so tests
// can substitute a recorder.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPMailer publishes mail jobs to a durable queue on the default exchange.
type AMQPMailer struct {
	channel Channel
	queue   string
	now     func() time.Time
}

// NewAMQPMailer declares the queue (idempotent, durable) and returns the
// mailer. An empty queue name falls back to [DefaultQueue].
func NewAMQPMailer(channel Channel, queue string) (*AMQPMailer, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &AMQPMailer{channel: channel, queue: queue, now: time.Now}, nil
}

// Send publishes one persistent mail job. Delivery to the inbox is the
// consumer's responsibility; Send only guarantees the job reached the broker.
func (m *AMQPMailer) Send(ctx context.Context, destination string, template string, payload map[string]string) error {
	body, err := json.Marshal(Job{
		To:       destination,
		Template: template,
		Payload:  payload,
		QueuedAt: m.now().UTC(),
	})
	if err != nil {
		return err
	}

	return m.channel.PublishWithContext(ctx,
		"",
		m.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    m.now().UTC(),
			Body:         body,
		},
	)
}
