package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/service"
)

const prefetch = 50

// Consumer drains the promotions queue into a dispatcher.
type Consumer struct {
	url        string
	queue      string
	dispatcher service.Dispatcher
	timeout    time.Duration
	log        *zap.SugaredLogger
}

func NewConsumer(cfg config.AMQP, d service.Dispatcher, dispatchTimeout time.Duration, log *zap.SugaredLogger) *Consumer {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 5 * time.Minute
	}
	return &Consumer{url: cfg.URL, queue: cfg.Queue, dispatcher: d, timeout: dispatchTimeout, log: log}
}

// Run keeps a consumer attached to the queue, reconnecting with
// exponential backoff, until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second

	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			wait := b.NextBackOff()
			c.log.Warnw("dispatch consumer dial failed", "error", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		b.Reset()

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warnw("dispatch consumer stopped, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		c.log.Warnw("set qos failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Infow("dispatch consumer attached", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.Errorw("dispatch message rejected", "error", err)
				// no requeue: a malformed body would loop forever
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	ev, err := DecodeEvent(body)
	if err != nil {
		return err
	}
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	report := c.dispatcher.Dispatch(dctx, ev.Promotions, ev.Store)
	c.log.Infow("promotions event dispatched",
		"store_id", ev.Store.ID,
		"synced_at", ev.SyncedAt,
		"broadcast_sent", report.Broadcast.Sent,
		"favorites_sent", report.Favorites.Sent,
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
