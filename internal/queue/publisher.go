package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/service"
)

const publishTimeout = 5 * time.Second

// Publisher implements service.PromotionNotifier by publishing a
// PromotionsSyncedEvent. Each publish dials its own connection. When the
// broker is unreachable the batch goes to the fallback notifier, if any.
type Publisher struct {
	url      string
	queue    string
	fallback service.PromotionNotifier
	log      *zap.SugaredLogger
	wg       sync.WaitGroup

	publish func(ctx context.Context, body []byte) error
}

func NewPublisher(cfg config.AMQP, fallback service.PromotionNotifier, log *zap.SugaredLogger) *Publisher {
	p := &Publisher{url: cfg.URL, queue: cfg.Queue, fallback: fallback, log: log}
	p.publish = p.dialAndPublish
	return p
}

// Notify returns immediately; the publish runs on its own goroutine.
func (p *Publisher) Notify(ctx context.Context, promotions []model.Promotion, store model.Store) {
	if len(promotions) == 0 {
		return
	}
	ev := PromotionsSyncedEvent{
		Store:      store,
		Promotions: append([]model.Promotion(nil), promotions...),
		SyncedAt:   time.Now().UTC(),
	}
	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		body, err := json.Marshal(ev)
		if err == nil {
			pctx, cancel := context.WithTimeout(detached, publishTimeout)
			err = p.publish(pctx, body)
			cancel()
		}
		if err == nil {
			p.log.Debugw("promotions event published", "store_id", store.ID, "count", len(ev.Promotions))
			return
		}
		p.log.Warnw("publish promotions event failed", "store_id", store.ID, "error", err)
		if p.fallback != nil {
			p.fallback.Notify(detached, ev.Promotions, ev.Store)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *Publisher) Wait() { p.wg.Wait() }

func (p *Publisher) dialAndPublish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
