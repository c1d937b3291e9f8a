package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/broadcast"
)

// Publisher relays seat delta events to the fanout exchange so the hubs
// on every other instance can rebroadcast them.  The connection is dialed
// lazily and re-dialed after failures; a broken broker only costs remote
// subscribers their deltas until the next full refresh, so publish errors
// are reported to the caller but never retried synchronously.
type Publisher struct {
	url        string
	instanceID string
	log        *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher builds a Publisher identified by instanceID.  The ID is
// stamped on every event as Origin so this instance's own consumer can
// skip the echo.
func NewPublisher(url, instanceID string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, instanceID: instanceID, log: log}
}

// Publish implements broadcast.Relay.
func (p *Publisher) Publish(ctx context.Context, ev broadcast.RemoteEvent) error {
	ev.Origin = p.instanceID
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal seat event: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		SeatEventsExchange, // exchange
		"",                 // routing key ignored by fanout
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
	if err != nil {
		// Drop the cached channel; the next publish re-dials.
		p.reset()
		return fmt.Errorf("publish seat event: %w", err)
	}
	return nil
}

// Close shuts the broker connection down.
func (p *Publisher) Close() {
	p.reset()
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(SeatEventsExchange, "fanout", false, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("seat event relay connected", zap.String("exchange", SeatEventsExchange))
	return ch, nil
}

func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
