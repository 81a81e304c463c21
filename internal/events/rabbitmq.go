package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"verida.org/internal/contract"
	"verida.org/internal/obs"
)

// DefaultExchange receives every committed contract event.
const DefaultExchange = "verida.contract_events"

// Producer publishes contract events to a durable RabbitMQ topic exchange.
// The routing key is "<contract>.<event>".
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// RoutingKey is the topic under which evt is published.
func RoutingKey(evt contract.Event) string {
	return evt.Contract + "." + evt.Name
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewProducer dials RabbitMQ and declares the exchange.
func NewProducer(amqpURL, exchange string) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}

	// Bounded dial timeout so startup does not hang.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	p := &Producer{conn: conn, exchange: exchange}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Producer) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

func (p *Producer) Publish(ctx context.Context, evt contract.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.Contract + ":" + evt.Name + ":" + evt.ID,
		Timestamp:    evt.At,
		Type:         evt.Name,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	key := RoutingKey(evt)
	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg)
	if err == nil {
		return nil
	}
	obs.Warn("rabbitmq publish failed; reopening channel", map[string]any{
		"exchange":    p.exchange,
		"routing_key": key,
		"error":       err.Error(),
	})
	// One retry on a fresh channel.
	if rerr := p.reopen(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Fallback is the no-op publisher used when RabbitMQ is not configured or
// unreachable at startup.
type Fallback struct{}

func (Fallback) Publish(_ context.Context, evt contract.Event) error {
	obs.Warn("event publish skipped", map[string]any{
		"component":   "rabbitmq_producer",
		"mode":        "fallback",
		"routing_key": RoutingKey(evt),
	})
	return nil
}

func (Fallback) Close() {}
