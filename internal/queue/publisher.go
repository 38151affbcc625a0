package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends auth events to the auth.events queue.  Each Publish dials
// its own connection so a broker outage never poisons shared state; callers
// treat failures as best-effort.
type Publisher struct {
	url string
	log *slog.Logger
}

func NewPublisher(url string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{url: url, log: log.With("component", "auth-publisher")}
}

// Publish marshals ev and publishes it as a persistent message.  Errors are
// logged and returned.
func (p *Publisher) Publish(ctx context.Context, ev AuthEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(AuthQueueName, true, false, false, false, nil); err != nil {
		p.log.Warn("queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", AuthQueueName, false, false, pub); err != nil {
		p.log.Warn("publish failed", "type", ev.Type, "error", err)
		return err
	}
	return nil
}

// Discard drops every event.  It stands in when RABBITMQ_URL is unset.
type Discard struct{}

func (Discard) Publish(context.Context, AuthEvent) error { return nil }
