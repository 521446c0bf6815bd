package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/promotions-api/internal/model"
)

type StoreWriter interface {
	Upsert(ctx context.Context, s *model.Store) error
}

type PromotionWriter interface {
	UpsertMany(ctx context.Context, promotions []model.Promotion) error
}

type SyncInput struct {
	Store      model.Store
	Promotions []model.Promotion
}

type SyncResult struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	TotalSynced int       `json:"total_synced"`
	Timestamp   time.Time `json:"timestamp"`
}

// PromotionSync upserts a store's promotions and hands the saved batch to
// the notifier without waiting for delivery.
type PromotionSync struct {
	stores     StoreWriter
	promotions PromotionWriter
	notifier   PromotionNotifier
	now        func() time.Time
	log        *zap.SugaredLogger
}

func NewPromotionSync(stores StoreWriter, promotions PromotionWriter, notifier PromotionNotifier, log *zap.SugaredLogger) *PromotionSync {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &PromotionSync{
		stores:     stores,
		promotions: promotions,
		notifier:   notifier,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Sync stores in.Store and in.Promotions on behalf of actor. Admins may
// sync any store; other staff only their own.
func (s *PromotionSync) Sync(ctx context.Context, actor model.Identity, in SyncInput) (*SyncResult, error) {
	store := in.Store
	store.ID = strings.TrimSpace(store.ID)
	store.Name = strings.TrimSpace(store.Name)
	if store.ID == "" || store.Name == "" {
		return nil, invalidInput("store id and name are required")
	}
	if actor.Kind != model.KindUser || (actor.Role != model.RoleAdmin && actor.StoreID != store.ID) {
		return nil, ErrForbidden
	}

	now := s.now()
	store.Active = true
	store.CreatedAt, store.UpdatedAt = now, now

	promotions := make([]model.Promotion, 0, len(in.Promotions))
	for i, p := range in.Promotions {
		p.ID = strings.TrimSpace(p.ID)
		p.Title = strings.TrimSpace(p.Title)
		if p.ID == "" || p.Title == "" {
			return nil, invalidInput(fmt.Sprintf("promotion %d: id and title are required", i))
		}
		p.StoreID = store.ID
		p.CreatedAt, p.UpdatedAt = now, now
		promotions = append(promotions, p)
	}

	if err := s.stores.Upsert(ctx, &store); err != nil {
		return nil, fmt.Errorf("upsert store: %w", err)
	}
	if err := s.promotions.UpsertMany(ctx, promotions); err != nil {
		return nil, fmt.Errorf("upsert promotions: %w", err)
	}
	s.log.Infow("promotions synced", "store_id", store.ID, "count", len(promotions), "actor", actor.ID)

	if len(promotions) > 0 {
		s.notifier.Notify(ctx, promotions, store)
	}
	return &SyncResult{
		Success:     true,
		Message:     fmt.Sprintf("%d promotion(s) synced", len(promotions)),
		TotalSynced: len(promotions),
		Timestamp:   now,
	}, nil
}
