package models

import "gorm.io/datatypes"

// Acknowledgement outcomes.
const (
	AckOutcomeOK     = "ok"
	AckOutcomeFailed = "failed"
)

// Acknowledgement is the audit trail for click-through status transitions.
// The transition itself is best-effort against the backend; the row records
// what was attempted and how it went, failed attempts included.
type Acknowledgement struct {
	BaseModel

	UserID     string `gorm:"type:uuid;index" json:"user_id"`
	EntityType string `gorm:"type:varchar(64);not null;index:idx_acks_item" json:"entity_type"`
	EntityID   string `gorm:"type:varchar(128);not null;index:idx_acks_item" json:"entity_id"`
	Status     string `gorm:"type:varchar(32);not null" json:"status"`
	Outcome    string `gorm:"type:varchar(16);not null;index" json:"outcome"`
	Error      string `gorm:"type:text" json:"error,omitempty"`

	// Item holds a snapshot of the notification as the staff member saw it.
	Item datatypes.JSON `json:"item,omitempty"`
}
