package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kestrelrealty/backoffice/internal/aggregator"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/models"
)

// SnapshotSource exposes the latest published feed. The poller satisfies this.
type SnapshotSource interface {
	Snapshot() *aggregator.Feed
}

// FeedService combines the live aggregated feed with per-staff read state.
type FeedService struct {
	db       *gorm.DB
	source   SnapshotSource
	registry *entities.Registry
}

// NewFeedService constructs a FeedService.
func NewFeedService(db *gorm.DB, source SnapshotSource, registry *entities.Registry) (*FeedService, error) {
	if db == nil {
		return nil, errors.New("feed service: db is required")
	}
	if source == nil {
		return nil, errors.New("feed service: snapshot source is required")
	}
	if registry == nil {
		return nil, errors.New("feed service: entity registry is required")
	}
	return &FeedService{db: db, source: source, registry: registry}, nil
}

// Current returns the most recent snapshot with is_read flags resolved for
// the supplied staff member. Before the first poll completes it returns an
// empty feed rather than an error, so the badge renders zeros instead of a
// failure state.
func (s *FeedService) Current(ctx context.Context, userID string) (*aggregator.Feed, error) {
	snapshot := s.source.Snapshot()
	if snapshot == nil {
		return &aggregator.Feed{
			Counts:      map[entities.Type]int{},
			Recent:      []entities.NotificationItem{},
			GeneratedAt: time.Now().UTC(),
		}, nil
	}

	// Work on a copy; the snapshot is shared across requests.
	feed := *snapshot
	feed.Recent = append([]entities.NotificationItem(nil), snapshot.Recent...)

	userID = strings.TrimSpace(userID)
	if userID == "" || len(feed.Recent) == 0 {
		return &feed, nil
	}

	read, err := s.readKeys(ctx, userID, feed.Recent)
	if err != nil {
		return nil, err
	}
	for i := range feed.Recent {
		feed.Recent[i].IsRead = read[feed.Recent[i].Key()]
	}
	return &feed, nil
}

// MarkRead records that the staff member has seen one item. Re-marking an
// already read item is a no-op.
func (s *FeedService) MarkRead(ctx context.Context, userID string, key entities.Key) error {
	if _, ok := s.registry.Lookup(key.Type); !ok {
		return fmt.Errorf("feed service: unknown entity type %q", key.Type)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("feed service: user id is required")
	}

	marker := models.ReadMarker{
		UserID:     userID,
		EntityType: string(key.Type),
		EntityID:   key.ID,
		ReadAt:     time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&marker).Error
	if err != nil {
		return fmt.Errorf("feed service: mark read: %w", err)
	}
	return nil
}

// MarkUnread removes the read marker for one item if present.
func (s *FeedService) MarkUnread(ctx context.Context, userID string, key entities.Key) error {
	if _, ok := s.registry.Lookup(key.Type); !ok {
		return fmt.Errorf("feed service: unknown entity type %q", key.Type)
	}

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND entity_type = ? AND entity_id = ?", userID, string(key.Type), key.ID).
		Delete(&models.ReadMarker{}).Error
	if err != nil {
		return fmt.Errorf("feed service: mark unread: %w", err)
	}
	return nil
}

// MarkAllRead marks every item in the current snapshot read for the staff member.
func (s *FeedService) MarkAllRead(ctx context.Context, userID string) error {
	snapshot := s.source.Snapshot()
	if snapshot == nil {
		return nil
	}

	for _, item := range snapshot.Recent {
		if err := s.MarkRead(ctx, userID, item.Key()); err != nil {
			return err
		}
	}
	return nil
}

func (s *FeedService) readKeys(ctx context.Context, userID string, items []entities.NotificationItem) (map[entities.Key]bool, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	var rows []models.ReadMarker
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND entity_id IN ?", userID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("feed service: load read markers: %w", err)
	}

	// Raw ids may repeat across entity types; the composite key keeps a
	// marker for one type from bleeding into another.
	read := make(map[entities.Key]bool, len(rows))
	for _, row := range rows {
		read[entities.Key{Type: entities.Type(row.EntityType), ID: row.EntityID}] = true
	}
	return read, nil
}
