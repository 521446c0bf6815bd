package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/config"
	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/push"
)

const (
	broadcastTitle = "🔥 New promotions available!"
	favoritesTitle = "⭐ New promotions at your favorite store!"

	notificationNewPromotions     = "new_promotions"
	notificationFavoritePromotion = "favorite_store_promotions"
)

// DeviceSource is the dispatcher's view of the device registry.
type DeviceSource interface {
	ActiveTokens(ctx context.Context) ([]string, error)
	TokensForCustomers(ctx context.Context, customerIDs []string) ([]string, error)
	RemoveTokens(ctx context.Context, tokens []string) (int64, error)
}

type PromotionLister interface {
	FindByStoreID(ctx context.Context, storeID string) ([]model.Promotion, error)
}

type FavoriteLister interface {
	FindByPromotionID(ctx context.Context, promotionID string) ([]model.Favorite, error)
}

// Notification is the content shared by every message of one fan-out.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// BulkResult aggregates the outcome of one fan-out.
type BulkResult struct {
	Requested     int `json:"requested"`
	Batches       int `json:"batches"`
	Sent          int `json:"sent"`
	Failed        int `json:"failed"`
	InvalidFormat int `json:"invalid_format"`
	Unregistered  int `json:"unregistered"`
}

type DispatchReport struct {
	Broadcast BulkResult `json:"broadcast"`
	Favorites BulkResult `json:"favorites"`
}

// NotificationDispatcher fans new promotions out as push notifications to
// every active device and, separately, to devices of customers who follow
// the store's promotions. It never returns an error: each path and each
// batch has its own error boundary.
type NotificationDispatcher struct {
	devices    DeviceSource
	promotions PromotionLister
	favorites  FavoriteLister
	gateway    push.Gateway
	receipts   push.ReceiptChecker

	batchSize    int
	batchDelay   time.Duration
	receiptDelay time.Duration
	debug        bool

	log       *zap.SugaredLogger
	now       func() time.Time
	afterFunc func(time.Duration, func())
}

// NewNotificationDispatcher wires the dispatcher. favorites may be nil,
// in which case the favorites path is skipped. Receipt reconciliation is
// enabled when the gateway also implements push.ReceiptChecker.
func NewNotificationDispatcher(devices DeviceSource, promotions PromotionLister, favorites FavoriteLister,
	gateway push.Gateway, cfg config.Push, log *zap.SugaredLogger) *NotificationDispatcher {
	size := cfg.BatchSize
	if size < 1 || size > push.MaxMessagesPerRequest {
		size = push.MaxMessagesPerRequest
	}
	d := &NotificationDispatcher{
		devices:      devices,
		promotions:   promotions,
		favorites:    favorites,
		gateway:      gateway,
		batchSize:    size,
		batchDelay:   cfg.BatchDelay,
		receiptDelay: cfg.ReceiptDelay,
		debug:        cfg.Debug,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		afterFunc:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	if rc, ok := gateway.(push.ReceiptChecker); ok {
		d.receipts = rc
	}
	return d
}

// Dispatch notifies about promotions newly synced for store.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, promotions []model.Promotion, store model.Store) DispatchReport {
	var report DispatchReport
	if len(promotions) == 0 {
		return report
	}
	report.Broadcast = d.guard("broadcast", func() BulkResult {
		return d.notifyAll(ctx, len(promotions), store)
	})
	report.Favorites = d.guard("favorites", func() BulkResult {
		return d.notifyFavorites(ctx, len(promotions), store)
	})
	d.log.Infow("promotion notifications dispatched",
		"store_id", store.ID,
		"promotions", len(promotions),
		"broadcast_sent", report.Broadcast.Sent,
		"broadcast_failed", report.Broadcast.Failed,
		"favorites_sent", report.Favorites.Sent,
		"favorites_failed", report.Favorites.Failed,
	)
	return report
}

func (d *NotificationDispatcher) guard(path string, fn func() BulkResult) (res BulkResult) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("notification path panicked", "path", path, "panic", r)
		}
	}()
	return fn()
}

func (d *NotificationDispatcher) notifyAll(ctx context.Context, count int, store model.Store) BulkResult {
	tokens, err := d.devices.ActiveTokens(ctx)
	if err != nil {
		d.log.Errorw("load active device tokens failed", "store_id", store.ID, "error", err)
		return BulkResult{}
	}
	if len(tokens) == 0 {
		d.debugw("no devices for broadcast", "store_id", store.ID)
		return BulkResult{}
	}
	return d.SendBulk(ctx, tokens, Notification{
		Title: broadcastTitle,
		Body:  fmt.Sprintf("%d new promotion(s) at %s", count, store.Name),
		Data:  d.payload(notificationNewPromotions, store, count),
	})
}

func (d *NotificationDispatcher) notifyFavorites(ctx context.Context, count int, store model.Store) BulkResult {
	if d.favorites == nil {
		d.debugw("favorites unavailable, skipping favorite notifications", "store_id", store.ID)
		return BulkResult{}
	}
	promos, err := d.promotions.FindByStoreID(ctx, store.ID)
	if err != nil {
		d.log.Errorw("load store promotions failed", "store_id", store.ID, "error", err)
		return BulkResult{}
	}

	seen := make(map[string]struct{})
	var customerIDs []string
	for _, p := range promos {
		favs, err := d.favorites.FindByPromotionID(ctx, p.ID)
		if err != nil {
			d.log.Warnw("load favorites failed", "promotion_id", p.ID, "error", err)
			continue
		}
		for _, f := range favs {
			if _, ok := seen[f.CustomerID]; ok {
				continue
			}
			seen[f.CustomerID] = struct{}{}
			customerIDs = append(customerIDs, f.CustomerID)
		}
	}
	if len(customerIDs) == 0 {
		d.debugw("no followers for store", "store_id", store.ID)
		return BulkResult{}
	}

	tokens, err := d.devices.TokensForCustomers(ctx, customerIDs)
	if err != nil {
		d.log.Errorw("load follower devices failed", "store_id", store.ID, "error", err)
		return BulkResult{}
	}
	if tokens = uniqueTokens(tokens); len(tokens) == 0 {
		return BulkResult{}
	}
	return d.SendBulk(ctx, tokens, Notification{
		Title: favoritesTitle,
		Body:  fmt.Sprintf("%s has %d new promotion(s)", store.Name, count),
		Data:  d.payload(notificationFavoritePromotion, store, count),
	})
}

func (d *NotificationDispatcher) payload(kind string, store model.Store, count int) map[string]string {
	return map[string]string{
		"type":           kind,
		"storeId":        store.ID,
		"storeName":      store.Name,
		"promotionCount": strconv.Itoa(count),
		"timestamp":      d.now().Format(time.RFC3339),
	}
}

// SendBulk delivers n to tokens in provider-sized batches, paced by the
// configured delay. Tokens failing the shape check are removed before
// sending; tokens the provider reports as not registered are removed
// after it. Accepted tickets are reconciled later when receipts are
// available.
func (d *NotificationDispatcher) SendBulk(ctx context.Context, tokens []string, n Notification) BulkResult {
	tokens = uniqueTokens(tokens)
	res := BulkResult{Requested: len(tokens)}
	tickets := make(map[string]string)
	var dead []string

	for i, batch := range chunk(tokens, d.batchSize) {
		if i > 0 && !sleepCtx(ctx, d.batchDelay) {
			d.log.Warnw("bulk send interrupted", "sent_batches", i, "error", ctx.Err())
			break
		}
		res.Batches++

		valid, invalid := d.partition(batch)
		if len(invalid) > 0 {
			res.InvalidFormat += len(invalid)
			d.remove(ctx, invalid, "invalid_format")
		}
		if len(valid) == 0 {
			continue
		}

		out, err := d.sendBatch(ctx, valid, n)
		if err != nil {
			res.Failed += len(valid)
			d.log.Errorw("push batch failed", "batch", i, "size", len(valid), "error", err)
			continue
		}
		for j, token := range valid {
			if j >= len(out) {
				res.Failed++
				continue
			}
			t := out[j]
			switch {
			case t.OK():
				res.Sent++
				if t.ID != "" {
					tickets[t.ID] = token
				}
			case t.DeviceNotRegistered():
				res.Failed++
				res.Unregistered++
				dead = append(dead, token)
			default:
				res.Failed++
				d.debugw("push ticket error", "message", t.Message)
			}
		}
		d.debugw("push batch sent", "batch", i, "size", len(valid))
	}

	if len(dead) > 0 {
		d.remove(ctx, dead, "device_not_registered")
	}
	if len(tickets) > 0 {
		d.scheduleReceiptCheck(tickets)
	}
	return res
}

func (d *NotificationDispatcher) partition(tokens []string) (valid, invalid []string) {
	for _, t := range tokens {
		if d.gateway.IsValidTokenFormat(t) {
			valid = append(valid, t)
		} else {
			invalid = append(invalid, t)
		}
	}
	return valid, invalid
}

func (d *NotificationDispatcher) sendBatch(ctx context.Context, tokens []string, n Notification) (tickets []push.Ticket, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("push batch panicked: %v", r)
		}
	}()
	msgs := make([]push.Message, len(tokens))
	for i, t := range tokens {
		msgs[i] = push.Message{
			To:        t,
			Title:     n.Title,
			Body:      n.Body,
			Data:      n.Data,
			Sound:     "default",
			Priority:  "high",
			ChannelID: "default",
		}
	}
	return d.gateway.SendBatch(ctx, msgs)
}

func (d *NotificationDispatcher) remove(ctx context.Context, tokens []string, reason string) {
	n, err := d.devices.RemoveTokens(ctx, tokens)
	if err != nil {
		d.log.Errorw("remove device tokens failed", "reason", reason, "count", len(tokens), "error", err)
		return
	}
	d.log.Infow("device tokens removed", "reason", reason, "count", n)
}

func (d *NotificationDispatcher) scheduleReceiptCheck(tickets map[string]string) {
	if d.receipts == nil {
		return
	}
	d.afterFunc(d.receiptDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		d.ReconcileReceipts(ctx, tickets)
	})
}

// ReconcileReceipts fetches receipts for ticket ids (mapped to their
// tokens) and removes tokens whose receipt says DeviceNotRegistered. It
// returns how many tokens were scheduled for removal.
func (d *NotificationDispatcher) ReconcileReceipts(ctx context.Context, tickets map[string]string) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("receipt reconciliation panicked", "panic", r)
		}
	}()
	if d.receipts == nil || len(tickets) == 0 {
		return 0
	}
	ids := make([]string, 0, len(tickets))
	for id := range tickets {
		ids = append(ids, id)
	}
	receipts, err := d.receipts.CheckReceipts(ctx, ids)
	if err != nil {
		d.log.Warnw("receipt check failed", "tickets", len(ids), "error", err)
		return 0
	}
	var dead []string
	for id, r := range receipts {
		if !r.DeviceNotRegistered() {
			continue
		}
		if token, ok := tickets[id]; ok {
			dead = append(dead, token)
		}
	}
	if len(dead) > 0 {
		d.remove(ctx, uniqueTokens(dead), "receipt_device_not_registered")
	}
	return len(dead)
}

func (d *NotificationDispatcher) debugw(msg string, kv ...any) {
	if d.debug {
		d.log.Infow(msg, kv...)
		return
	}
	d.log.Debugw(msg, kv...)
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func chunk(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// sleepCtx waits for d or until ctx is done, reporting false in the latter case.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
