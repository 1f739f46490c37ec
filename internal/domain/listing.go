package domain

import (
	"time"

	"kabonia-backend/internal/pkg/ids"

	"gorm.io/gorm"
)

// Listing is a standing fixed-price offer to sell part of a unit type.
// remaining only decreases: the settlement engine decrements it with a
// conditional UPDATE, and once active flips to false the row is immutable.
type Listing struct {
	ListingID  ids.ID    `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	UnitTypeID ids.ID    `gorm:"column:unit_type_id;type:uuid;not null;index" json:"unit_type_id"`
	ProjectID  ids.ID    `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	SellerID   ids.ID    `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Amount     float64   `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Remaining  float64   `gorm:"column:remaining;type:decimal(18,2);not null" json:"remaining"`
	Price      float64   `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null;index" json:"expires_at"`
	Active     bool      `gorm:"column:active;not null;default:true" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID.IsNil() {
		l.ListingID = ids.New()
	}
	return nil
}

// Expired is the read-time expiration check; reads must never return an
// expired listing as purchasable even before the sweep has flipped it.
func (l *Listing) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Purchasable reports whether a purchase may be attempted at all.
func (l *Listing) Purchasable(now time.Time) bool {
	return l.Active && !l.Expired(now) && l.Remaining > 0
}
