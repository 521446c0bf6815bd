package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promohub/promotions-api/internal/model"
	"github.com/promohub/promotions-api/internal/repository"
)

type FavoriteStore interface {
	Add(ctx context.Context, f *model.Favorite) error
	Remove(ctx context.Context, customerID, promotionID string) (bool, error)
	FindByCustomerID(ctx context.Context, customerID string) ([]model.Favorite, error)
}

type PromotionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Promotion, error)
}

// FavoriteService manages the customer-to-promotion follow links that
// drive favorite-store notifications.
type FavoriteService struct {
	favorites  FavoriteStore
	promotions PromotionFinder
}

func NewFavoriteService(favorites FavoriteStore, promotions PromotionFinder) *FavoriteService {
	return &FavoriteService{favorites: favorites, promotions: promotions}
}

// Add follows a promotion. Following twice is a no-op.
func (s *FavoriteService) Add(ctx context.Context, customerID, promotionID string) (*model.Favorite, error) {
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return nil, invalidInput("promotion id is required")
	}
	if _, err := s.promotions.FindByID(ctx, promotionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPromotionNotFound
		}
		return nil, fmt.Errorf("lookup promotion: %w", err)
	}
	f := &model.Favorite{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		PromotionID: promotionID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.favorites.Add(ctx, f); err != nil {
		return nil, fmt.Errorf("add favorite: %w", err)
	}
	return f, nil
}

func (s *FavoriteService) Remove(ctx context.Context, customerID, promotionID string) (bool, error) {
	ok, err := s.favorites.Remove(ctx, customerID, promotionID)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	return ok, nil
}

func (s *FavoriteService) List(ctx context.Context, customerID string) ([]model.Favorite, error) {
	list, err := s.favorites.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return list, nil
}
