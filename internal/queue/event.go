// Package queue carries synced promotion batches over RabbitMQ so push
// fan-out can run outside the API process.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/promohub/promotions-api/internal/model"
)

// PromotionsSyncedEvent is published after a store's promotions were
// upserted. It holds everything the dispatcher needs, so consumers do not
// query the catalog for the batch itself.
type PromotionsSyncedEvent struct {
	Store      model.Store       `json:"store"`
	Promotions []model.Promotion `json:"promotions"`
	SyncedAt   time.Time         `json:"synced_at"`
}

var errEmptyEvent = errors.New("event has no store or promotions")

// DecodeEvent parses and sanity-checks a message body.
func DecodeEvent(body []byte) (PromotionsSyncedEvent, error) {
	var ev PromotionsSyncedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Store.ID == "" || len(ev.Promotions) == 0 {
		return ev, errEmptyEvent
	}
	return ev, nil
}
