package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/model"
)

// PromotionNotifier receives freshly synced promotions. Implementations
// must return quickly; delivery happens off the request path.
type PromotionNotifier interface {
	Notify(ctx context.Context, promotions []model.Promotion, store model.Store)
}

// Dispatcher is satisfied by *NotificationDispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, promotions []model.Promotion, store model.Store) DispatchReport
}

// NoopNotifier is wired when push notifications are disabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, []model.Promotion, model.Store) {}

// AsyncNotifier runs the dispatcher on its own goroutine with a detached,
// time-bounded context. Wait blocks until in-flight dispatches finish.
type AsyncNotifier struct {
	dispatcher Dispatcher
	timeout    time.Duration
	log        *zap.SugaredLogger
	wg         sync.WaitGroup
}

func NewAsyncNotifier(d Dispatcher, timeout time.Duration, log *zap.SugaredLogger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AsyncNotifier{dispatcher: d, timeout: timeout, log: log}
}

func (n *AsyncNotifier) Notify(ctx context.Context, promotions []model.Promotion, store model.Store) {
	if len(promotions) == 0 {
		return
	}
	batch := append([]model.Promotion(nil), promotions...)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.log.Errorw("promotion dispatch panicked", "store_id", store.ID, "panic", r)
			}
		}()
		// the request context dies with the response
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		n.dispatcher.Dispatch(dctx, batch, store)
	}()
}

// Wait blocks until every dispatch started so far has returned.
func (n *AsyncNotifier) Wait() { n.wg.Wait() }
