package models

import "time"

// ReadMarker records that a staff member has seen one feed item. Markers are
// keyed by the composite (user, entity type, entity id) because raw ids are
// only unique within one entity type.
type ReadMarker struct {
	BaseModel

	UserID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_read_markers_item" json:"user_id"`
	EntityType string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_read_markers_item" json:"entity_type"`
	EntityID   string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_read_markers_item" json:"entity_id"`
	ReadAt     time.Time `gorm:"index" json:"read_at"`
}
