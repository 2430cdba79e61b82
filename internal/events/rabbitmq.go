package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "topic"

var errDeliveriesClosed = errors.New("delivery channel closed")

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil)
}

// RabbitPublisher publishes AppointmentChanged messages to a topic exchange.
type RabbitPublisher struct {
	exchange string
	log      *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitPublisher(conn *amqp.Connection, exchange string, log *slog.Logger) (*RabbitPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &RabbitPublisher{
		exchange: exchange,
		log:      log.With(slog.String("component", "events.publisher")),
		ch:       ch,
	}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, e AppointmentChanged) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, e.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.RoutingKey(), err)
	}
	p.log.Debug("event published",
		slog.String("routing_key", e.RoutingKey()),
		slog.String("clinic_id", e.ClinicID.String()),
	)
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}

// Listener applies AppointmentChanged messages to a local Invalidator.
type Listener struct {
	inv Invalidator
	log *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewListener(inv Invalidator, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		inv:        inv,
		log:        log.With(slog.String("component", "events.listener")),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Handle decodes one message body and drops the state it makes stale.
func (l *Listener) Handle(ctx context.Context, body []byte) error {
	e, err := Decode(body)
	if err != nil {
		return err
	}

	if e.Kind == KindHoursChanged {
		l.inv.Forget(e.ClinicID)
		l.log.Info("clinic hours changed", slog.String("clinic_id", e.ClinicID.String()))
		return nil
	}

	year, month, ok := e.Month()
	if !ok {
		return fmt.Errorf("appointment event %s: invalid date %q", e.Kind, e.Date)
	}
	l.inv.Invalidate(ctx, e.ClinicID, year, month)
	l.log.Debug("availability invalidated",
		slog.String("clinic_id", e.ClinicID.String()),
		slog.String("kind", string(e.Kind)),
		slog.String("date", e.Date),
	)
	return nil
}

// Dialer opens a new broker connection.
type Dialer func(ctx context.Context) (*amqp.Connection, error)

// RunWithReconnect runs the listener on a connection of its own and
// redials with exponential backoff whenever the connection or the
// delivery channel closes. Once a later subscription is in place the
// Invalidator is told to drop everything, since events published during
// the gap are lost. It returns nil when ctx is done.
func (l *Listener) RunWithReconnect(ctx context.Context, dial Dialer, exchange, queue string) error {
	return l.supervise(ctx, func(ctx context.Context, subscribed func()) error {
		conn, err := dial(ctx)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()
		return l.run(ctx, conn, exchange, queue, subscribed)
	})
}

// session runs one connection's worth of listening. It calls subscribed
// once deliveries are flowing.
type session func(ctx context.Context, subscribed func()) error

func (l *Listener) supervise(ctx context.Context, run session) error {
	backoff := l.minBackoff
	for attempt := 0; ; attempt++ {
		resumed := false
		err := run(ctx, func() {
			resumed = true
			if attempt > 0 {
				l.inv.InvalidateAll(ctx)
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		if resumed {
			backoff = l.minBackoff
		}
		l.log.Warn("event listener disconnected",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(2*backoff, l.maxBackoff)
	}
}

// Run binds queue to every appointment routing key on exchange and handles
// deliveries until ctx is done. An empty queue name declares a server-named
// exclusive queue, so every instance sees every event. It returns an error
// when the delivery channel closes; RunWithReconnect recovers from that.
func (l *Listener) Run(ctx context.Context, conn *amqp.Connection, exchange, queue string) error {
	return l.run(ctx, conn, exchange, queue, func() {})
}

func (l *Listener) run(ctx context.Context, conn *amqp.Connection, exchange, queue string, subscribed func()) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		return fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	exclusive := queue == ""
	q, err := ch.QueueDeclare(queue, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", queue, err)
	}
	if err := ch.QueueBind(q.Name, routingKeyPrefix+"*", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", q.Name, err)
	}

	msgs, err := ch.Consume(q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", q.Name, err)
	}
	l.log.Info("listening for appointment events", slog.String("queue", q.Name), slog.String("exchange", exchange))
	subscribed()

	return l.consume(ctx, msgs)
}

func (l *Listener) consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			if err := l.Handle(ctx, msg.Body); err != nil {
				l.log.Warn("dropping appointment event",
					slog.String("routing_key", msg.RoutingKey),
					slog.Any("err", err),
				)
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}
