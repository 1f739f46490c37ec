package domain

import (
	"time"

	"kabonia-backend/internal/pkg/ids"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UnitType is the fungible record minted against one verified project.
// Exactly one per project (unique index); supply figures track confirmed
// mints only. Ownership is never read from here, always derived from the
// transaction log.
type UnitType struct {
	UnitTypeID    ids.ID         `gorm:"column:unit_type_id;type:uuid;primaryKey" json:"unit_type_id"`
	ExternalID    string         `gorm:"column:external_id;uniqueIndex;not null" json:"external_id"`
	ProjectID     ids.ID         `gorm:"column:project_id;type:uuid;uniqueIndex;not null" json:"project_id"`
	Name          string         `gorm:"column:name;not null" json:"name"`
	Symbol        string         `gorm:"column:symbol;not null" json:"symbol"`
	Decimals      int            `gorm:"column:decimals;not null;default:2" json:"decimals"`
	InitialSupply float64        `gorm:"column:initial_supply;type:decimal(18,2);not null" json:"initial_supply"`
	CurrentSupply float64        `gorm:"column:current_supply;type:decimal(18,2);not null" json:"current_supply"`
	MaxSupply     *float64       `gorm:"column:max_supply;type:decimal(18,2)" json:"max_supply"`
	CreatorID     ids.ID         `gorm:"column:creator_id;type:uuid;not null" json:"creator_id"`
	CreatedAt     time.Time      `json:"created_at"`
	LastMintAt    *time.Time     `gorm:"column:last_mint_at" json:"last_mint_at"`
	Metadata      datatypes.JSON `gorm:"column:metadata;type:json" json:"metadata"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (UnitType) TableName() string {
	return "unit_types"
}

func (u *UnitType) BeforeCreate(tx *gorm.DB) error {
	if u.UnitTypeID.IsNil() {
		u.UnitTypeID = ids.New()
	}
	return nil
}
