package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// DefaultQueue is the durable queue audit events are published to.
const DefaultQueue = "marquee.audit"

const publishTimeout = 2 * time.Second

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url, queue string) (channel, func() error, error)

// AMQPEmitter publishes events as persistent JSON messages. The connection
// is opened lazily and re-dialed after a failed publish.
type AMQPEmitter struct {
	url   string
	queue string
	dial  dialFunc

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

func NewAMQPEmitter(url, queue string) *AMQPEmitter {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPEmitter{url: url, queue: queue, dial: dialAMQP}
}

func dialAMQP(url, queue string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return ch, conn.Close, nil
}

func (e *AMQPEmitter) Emit(ctx context.Context, ev domain.AuditEvent) {
	if err := e.publish(ctx, ev); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "audit publish failed", "event", ev.Name, "err", err)
	}
}

func (e *AMQPEmitter) publish(ctx context.Context, ev domain.AuditEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ch == nil {
		ch, closeConn, err := e.dial(e.url, e.queue)
		if err != nil {
			return err
		}
		e.ch, e.closeConn = ch, closeConn
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = e.ch.PublishWithContext(ctx, "", e.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		Type:         ev.Name,
		Body:         body,
	})
	if err != nil {
		e.resetLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (e *AMQPEmitter) resetLocked() {
	if e.ch != nil {
		_ = e.ch.Close()
	}
	if e.closeConn != nil {
		_ = e.closeConn()
	}
	e.ch, e.closeConn = nil, nil
}

// Close releases the broker connection.
func (e *AMQPEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		return nil
	}
	var errs []error
	if err := e.ch.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.closeConn != nil {
		if err := e.closeConn(); err != nil {
			errs = append(errs, err)
		}
	}
	e.ch, e.closeConn = nil, nil
	return errors.Join(errs...)
}
