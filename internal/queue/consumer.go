package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/broadcast"
	"github.com/iliyamo/cinema-seat-locks/internal/lock"
)

// StartSeatEventConsumer binds a transient queue to the seat.events
// fanout exchange and feeds relayed deltas into the local orchestrator.
// It runs a reconnect loop with exponential backoff until ctx is
// cancelled; a down broker degrades cross-instance freshness but never
// the local instance.
func StartSeatEventConsumer(ctx context.Context, url, instanceID string, orch *broadcast.Orchestrator, log *zap.Logger) {
	runConsumerLoop(ctx, url, log.Named("seat-event-consumer"), func(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
		if err := ch.ExchangeDeclare(SeatEventsExchange, "fanout", false, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare exchange: %w", err)
		}
		// Exclusive auto-delete queue: each instance gets its own feed
		// and the broker cleans up when the instance goes away.
		q, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			return nil, fmt.Errorf("declare queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, "", SeatEventsExchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue: %w", err)
		}
		return ch.Consume(q.Name, "", false, true, false, false, nil)
	}, func(d amqp.Delivery) error {
		var ev broadcast.RemoteEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			return fmt.Errorf("unmarshal seat event: %w", err)
		}
		if ev.Origin == instanceID {
			return nil // our own echo from the fanout
		}
		orch.HandleRemote(ev)
		return nil
	})
}

// StartBookingConsumer consumes booking.confirmed and releases the
// buyer's seat locks once their purchase has committed.  This is the
// booking-completion hook: the seats flip to Booked through the
// persisted booking row, and the now-pointless locks are cleaned up so
// they do not linger until TTL expiry.
func StartBookingConsumer(ctx context.Context, url string, locks *lock.Service, log *zap.Logger) {
	clog := log.Named("booking-consumer")
	runConsumerLoop(ctx, url, clog, func(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
		if err := ch.Qos(50, 0, false); err != nil {
			clog.Warn("set QoS failed", zap.Error(err))
		}
		if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare queue: %w", err)
		}
		return ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
	}, func(d amqp.Delivery) error {
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			return fmt.Errorf("unmarshal booking event: %w", err)
		}
		if ev.Owner == "" || ev.ShowtimeID == 0 {
			return fmt.Errorf("booking event missing owner or showtime")
		}
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		res, err := locks.Release(opCtx, ev.ShowtimeID, ev.SeatIDs, ev.Owner)
		if err != nil {
			return fmt.Errorf("release after booking: %w", err)
		}
		clog.Info("released locks after confirmed booking",
			zap.Uint64("reservation_id", ev.ReservationID),
			zap.Uint64("showtime_id", ev.ShowtimeID),
			zap.Uint64s("released", res.Released),
			zap.Bool("degraded", res.Degraded))
		return nil
	})
}

// runConsumerLoop dials, sets up a delivery stream and processes messages
// until ctx is cancelled, reconnecting with capped exponential backoff.
// Messages that fail processing are rejected without requeue so one
// poisoned payload cannot spin the consumer.
func runConsumerLoop(
	ctx context.Context,
	url string,
	log *zap.Logger,
	setup func(*amqp.Channel) (<-chan amqp.Delivery, error),
	handle func(amqp.Delivery) error,
) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("broker dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consume(ctx, conn, setup, handle)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func consume(ctx context.Context, conn *amqp.Connection, setup func(*amqp.Channel) (<-chan amqp.Delivery, error), handle func(amqp.Delivery) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	msgs, err := setup(ch)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handle(d); err != nil {
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
