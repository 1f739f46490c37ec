package domain

import (
	"time"

	"kabonia-backend/internal/pkg/ids"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing lifecycle event types.
const (
	ListingEventCreated   = "CREATED"
	ListingEventUpdated   = "UPDATED"
	ListingEventCancelled = "CANCELLED"
	ListingEventFilled    = "FILLED"
	ListingEventExpired   = "EXPIRED"
)

// ListingEvent is an append-only audit record of listing lifecycle changes.
type ListingEvent struct {
	EventID   ids.ID         `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	ListingID ids.ID         `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	EventType string         `gorm:"column:event_type;type:varchar(20);not null" json:"event_type"`
	ActorID   *ids.ID        `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	EventData datatypes.JSON `gorm:"column:event_data;type:json;not null" json:"event_data"`
	CreatedAt time.Time      `json:"created_at"`
}

func (ListingEvent) TableName() string {
	return "listing_events"
}

func (e *ListingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID.IsNil() {
		e.EventID = ids.New()
	}
	return nil
}
