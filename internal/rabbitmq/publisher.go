// Package rabbitmq publishes the service's ws, chat and audit events to a topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"support-chat/internal/observability"
	"support-chat/internal/telemetry"
)

// redialInterval bounds how often a lost broker connection is re-established.
const redialInterval = 5 * time.Second

// ErrBrokerUnavailable is returned by Publish while the broker connection is down.
var ErrBrokerUnavailable = errors.New("rabbitmq broker unavailable")

// Publisher publishes service events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// Options configures NewPublisher.
type Options struct {
	URL      string
	Exchange string
	// AppID is stamped on every message as the AMQP app-id property.
	AppID string
}

// NewPublisher connects to the broker and declares the exchange. When the URL is
// empty or the first connection fails it returns a noop publisher that only logs.
// A connection lost later is redialed on a subsequent Publish.
func NewPublisher(opts Options) Publisher {
	if opts.URL == "" {
		log.Printf("rabbitmq disabled, using noop: empty amqp url")
		return noopPublisher{reason: "empty amqp url"}
	}

	conn, ch, err := dial(opts)
	if err != nil {
		log.Printf("rabbitmq disabled, using noop: %v", err)
		return noopPublisher{reason: err.Error()}
	}

	log.Printf("rabbitmq connected exchange=%s", opts.Exchange)
	return &amqpPublisher{opts: opts, conn: conn, ch: ch, dialedAt: time.Now()}
}

func dial(opts Options) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(opts.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", opts.Exchange, err)
	}
	return conn, ch, nil
}

type amqpPublisher struct {
	opts Options

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	dialedAt time.Time
	closed   bool
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, p.opts.Exchange, routingKey, false, false, publishing(p.opts.AppID, event, body, headers))
	if err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s: %v", routingKey, err)
	}
	return err
}

// channel returns the open channel, redialing at most once per redialInterval
// after the connection was lost.
func (p *amqpPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrBrokerUnavailable
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if time.Since(p.dialedAt) < redialInterval {
		return nil, ErrBrokerUnavailable
	}

	p.dialedAt = time.Now()
	p.release()
	conn, ch, err := dial(p.opts)
	if err != nil {
		log.Printf("rabbitmq redial failed exchange=%s: %v", p.opts.Exchange, err)
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	p.conn, p.ch = conn, ch
	log.Printf("rabbitmq reconnected exchange=%s", p.opts.Exchange)
	return ch, nil
}

func (p *amqpPublisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// publishing builds the AMQP message for an event. The request id header doubles
// as the correlation id so consumers can join ws, chat and audit events.
func publishing(appID string, event any, body []byte, headers map[string]string) amqp.Publishing {
	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: headers["x-request-id"],
		AppId:         appID,
		Type:          eventType(event),
		Timestamp:     time.Now().UTC(),
		Headers:       table,
		Body:          body,
	}
}

// eventType names the event for the AMQP type property, e.g. "chat_events.message_created".
func eventType(event any) string {
	switch e := event.(type) {
	case observability.EventEnvelope:
		return e.EventType + "." + e.EventName
	case *observability.EventEnvelope:
		return e.EventType + "." + e.EventName
	case telemetry.AuditEnvelope:
		return e.EventType
	case *telemetry.AuditEnvelope:
		return e.EventType
	default:
		return ""
	}
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	log.Printf("rabbitmq noop publish routing_key=%s type=%s request_id=%s", routingKey, eventType(event), headers["x-request-id"])
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason reports why a noop publisher was chosen, or "" otherwise.
func PublisherNoopReason(p Publisher) string {
	if noop, ok := p.(noopPublisher); ok {
		return noop.reason
	}
	return ""
}
