// Package notify publishes user-facing studio events to an AMQP exchange.
// Consumers (the web frontend's notification relay) turn them into toasts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tubestudio/internal/util"
)

// Severities carried by events.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityError   = "error"
)

// Event is one ephemeral notification. Events are independent of all other
// entities and are never persisted.
type Event struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	Severity string    `json:"severity"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Publisher emits studio events. Publishing is fire-and-forget: failures are
// logged, never propagated to the operation that triggered the event.
type Publisher interface {
	Publish(ctx context.Context, userID, severity, text string)
}

// AMQPPublisher publishes events to a topic exchange with routing key
// "studio.<severity>".
type AMQPPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{exchange: exchange, url: url}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.channel = ch
	return nil
}

// Publish emits one event. A broken channel is reconnected once; a second
// failure is logged and dropped.
func (p *AMQPPublisher) Publish(ctx context.Context, userID, severity, text string) {
	event := Event{
		ID:       util.NewPrefixedID("evt"),
		UserID:   userID,
		Severity: severity,
		Text:     text,
		At:       time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("notify: encode event", "err", err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.publishLocked(ctx, severity, body); err != nil {
		if rerr := p.connect(); rerr != nil {
			slog.Error("notify: reconnect", "err", rerr)
			return
		}
		if err := p.publishLocked(ctx, severity, body); err != nil {
			slog.Error("notify: publish", "err", err)
		}
	}
}

func (p *AMQPPublisher) publishLocked(ctx context.Context, severity string, body []byte) error {
	return p.channel.PublishWithContext(ctx, p.exchange, "studio."+severity, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close shuts the broker connection down.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher drops every event. Used when AMQP is not configured and in
// tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, string) {}

// Recorder captures events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, userID, severity, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{UserID: userID, Severity: severity, Text: text, At: time.Now().UTC()})
}
