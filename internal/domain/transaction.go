package domain

import (
	"time"

	"kabonia-backend/internal/pkg/ids"

	"gorm.io/gorm"
)

// Transaction kinds.
const (
	TxKindMint     = "mint"
	TxKindTransfer = "transfer"
	TxKindBuy      = "buy"
	TxKindSell     = "sell"
)

// Transaction statuses. pending is transitional only; every pending row is
// resolved to confirmed or failed by the operation that created it, or by
// the stale settlement sweep if that operation died.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// Transaction is one append-only economic event. Confirmed rows are
// immutable; balances are derived exclusively from confirmed rows
// (Σ received − Σ sent), so no mutable balance counter exists anywhere.
type Transaction struct {
	TxID               ids.ID     `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	ExternalTxID       *string    `gorm:"column:external_tx_id" json:"external_tx_id"`
	UnitTypeID         ids.ID     `gorm:"column:unit_type_id;type:uuid;not null;index" json:"unit_type_id"`
	ProjectID          ids.ID     `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	Kind               string     `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	SenderID           *ids.ID    `gorm:"column:sender_id;type:uuid;index" json:"sender_id"`
	ReceiverID         ids.ID     `gorm:"column:receiver_id;type:uuid;not null;index" json:"receiver_id"`
	Amount             float64    `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Price              *float64   `gorm:"column:price;type:decimal(18,2)" json:"price"`
	TotalPrice         *float64   `gorm:"column:total_price;type:decimal(18,2)" json:"total_price"`
	Status             string     `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	ConsensusTimestamp *time.Time `gorm:"column:consensus_timestamp" json:"consensus_timestamp"`
	ListingID          *ids.ID    `gorm:"column:listing_id;type:uuid;index" json:"listing_id"`
	Memo               string     `gorm:"column:memo" json:"memo"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID.IsNil() {
		t.TxID = ids.New()
	}
	return nil
}
