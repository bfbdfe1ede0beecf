// Package pubsub publishes domain events to a RabbitMQ topic exchange so
// UI and REST collaborators outside this process can react to presence and
// delivery changes.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
	Close() error
}

type ConnectionOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

const maxDialBackoff = 30 * time.Second

type rmqClient struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// New dials the broker with backoff, declares the durable topic exchange
// and returns a confirming publisher.
func New(ctx context.Context, cfg ConnectionOptions, log *slog.Logger) (Publisher, error) {
	conn, err := dialWithRetry(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		cfg.Exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}
	return &rmqClient{conn: conn, exchange: cfg.Exchange, log: log}, nil
}

// dialWithRetry doubles the delay on each failed attempt, capped, and
// respects context cancellation for graceful shutdown.
func dialWithRetry(ctx context.Context, cfg ConnectionOptions, log *slog.Logger) (*amqp091.Connection, error) {
	var lastErr error
	sleep := cfg.Delay

	for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if attempt > 1 {
				log.Info("Broker connected", "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err

		log.Warn("Broker dial failed",
			"attempt", attempt,
			"sleep", sleep,
			"error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		sleep *= 2
		if sleep > maxDialBackoff {
			sleep = maxDialBackoff
		}
	}
	return nil, fmt.Errorf("failed to connect to broker after %d attempts: %w",
		cfg.RetryAttempts, lastErr)
}

func (r *rmqClient) Publish(ctx context.Context, key string, body []byte) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return err
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return err
	}
	if ok, err := confirmation.WaitContext(ctx); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("broker rejected publish on key %s", key)
	}
	r.log.Debug("Event published", "key", key, "exchange", r.exchange)
	return nil
}

func (r *rmqClient) Close() error {
	return r.conn.Close()
}
