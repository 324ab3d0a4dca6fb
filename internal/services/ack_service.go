package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/models"
	"github.com/kestrelrealty/backoffice/pkg/logger"
	"github.com/kestrelrealty/backoffice/pkg/metrics"
)

// ackTimeout bounds the background transition so a hung backend call cannot
// pile up goroutines across clicks.
const ackTimeout = 10 * time.Second

// StatusWriter is the slice of the backend client the ack service needs.
type StatusWriter interface {
	SetStatus(ctx context.Context, t entities.Type, id, status string) error
}

// AckService performs the click-through "new" -> "pending" transition.
// The transition is deliberately best-effort: staff navigation must never
// wait on, or fail because of, the backend write. A failed transition is
// logged and recorded; the item simply reappears on the next poll until the
// management page's own update succeeds.
type AckService struct {
	db       *gorm.DB
	writer   StatusWriter
	registry *entities.Registry
	log      *zap.Logger

	// async is disabled in tests to make outcomes observable.
	async bool
}

// NewAckService constructs an AckService.
func NewAckService(db *gorm.DB, writer StatusWriter, registry *entities.Registry) (*AckService, error) {
	if db == nil {
		return nil, errors.New("ack service: db is required")
	}
	if writer == nil {
		return nil, errors.New("ack service: status writer is required")
	}
	if registry == nil {
		return nil, errors.New("ack service: entity registry is required")
	}
	return &AckService{
		db:       db,
		writer:   writer,
		registry: registry,
		log:      logger.WithModule("acknowledge"),
		async:    true,
	}, nil
}

// Acknowledge fires the background transition for one clicked item and
// returns the dashboard redirect target immediately. The returned URL is
// valid regardless of how the transition turns out.
func (s *AckService) Acknowledge(ctx context.Context, userID string, key entities.Key, item *entities.NotificationItem) (string, error) {
	d, ok := s.registry.Lookup(key.Type)
	if !ok {
		return "", errors.New("ack service: unknown entity type")
	}

	id := strings.TrimSpace(key.ID)
	if id == "" {
		return "", errors.New("ack service: item id is required")
	}

	if s.async {
		go s.transition(userID, key, item)
	} else {
		s.transition(userID, key, item)
	}

	return d.DashboardURL(id), nil
}

// transition is the fire-and-forget half of Acknowledge. It owns its own
// context: the HTTP request that triggered it has usually finished by the
// time the backend write completes.
func (s *AckService) transition(userID string, key entities.Key, item *entities.NotificationItem) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	err := s.writer.SetStatus(ctx, key.Type, key.ID, entities.StatusPending)

	outcome := models.AckOutcomeOK
	errText := ""
	if err != nil {
		outcome = models.AckOutcomeFailed
		errText = err.Error()
		metrics.StatusTransitions.WithLabelValues(string(key.Type), "failed").Inc()
		s.log.Warn("click-through transition failed",
			zap.String("entity", string(key.Type)),
			zap.String("id", key.ID),
			zap.Error(err),
		)
	} else {
		metrics.StatusTransitions.WithLabelValues(string(key.Type), "ok").Inc()
	}

	ack := models.Acknowledgement{
		UserID:     userID,
		EntityType: string(key.Type),
		EntityID:   key.ID,
		Status:     entities.StatusPending,
		Outcome:    outcome,
		Error:      errText,
	}
	if item != nil {
		if data, err := json.Marshal(item); err == nil {
			ack.Item = datatypes.JSON(data)
		}
	}

	if err := s.db.WithContext(ctx).Create(&ack).Error; err != nil {
		s.log.Warn("recording acknowledgement failed", zap.Error(err))
	}
}
