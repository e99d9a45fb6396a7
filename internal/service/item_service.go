package service

import (
	"context"
	"time"

	"cat-engine/internal/models"
	"cat-engine/internal/pkg/logger"
	"cat-engine/internal/selection"
)

// ItemWriter is the intake side of the item store.
type ItemWriter interface {
	ItemStore
	Insert(ctx context.Context, item *models.Item) error
	MarkSuperseded(ctx context.Context, itemID string, version, newVersion int) error
	List(ctx context.Context, topicID string, publishedOnly bool) ([]models.Item, error)
}

// ItemService handles item intake and pool introspection. Versions are
// immutable: re-submitting an existing item ID inserts the next version and
// supersedes the previous one.
type ItemService struct {
	Items ItemWriter
	pool  *selection.PoolManager
	log   *logger.Logger
}

func NewItemService(items ItemWriter, pool *selection.PoolManager, log *logger.Logger) *ItemService {
	return &ItemService{Items: items, pool: pool, log: log}
}

// Create validates and stores an item. An existing item ID gets the next
// version number and the prior version is marked superseded.
func (s *ItemService) Create(ctx context.Context, item *models.Item) (*models.Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	item.Version = 1
	item.CreatedAt = time.Now().UTC()
	prior, err := s.Items.FindLatest(ctx, item.ItemID)
	if err != nil && err != models.ErrItemNotFound {
		return nil, err
	}
	if prior != nil {
		item.Version = prior.Version + 1
	}

	if err := s.Items.Insert(ctx, item); err != nil {
		return nil, err
	}
	if prior != nil {
		if err := s.Items.MarkSuperseded(ctx, prior.ItemID, prior.Version, item.Version); err != nil {
			return nil, err
		}
	}
	s.log.Info("item stored", "item_id", item.ItemID, "version", item.Version, "topic_id", item.TopicID)
	return item, nil
}

// Get returns the latest version of an item.
func (s *ItemService) Get(ctx context.Context, itemID string) (*models.Item, error) {
	return s.Items.FindLatest(ctx, itemID)
}

func (s *ItemService) List(ctx context.Context, topicID string, publishedOnly bool) ([]models.Item, error) {
	return s.Items.List(ctx, topicID, publishedOnly)
}

// PoolInfo reports the eligible pool's distribution for a constraint set.
func (s *ItemService) PoolInfo(ctx context.Context, c models.Constraints, targetCount int) (*selection.PoolInfo, error) {
	return s.pool.Describe(ctx, c, targetCount)
}
