package ledger

import (
	"context"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/pkg/ids"

	"gorm.io/gorm"
)

// Reader derives balances from the confirmed transaction log. The log is
// the sole source of truth for ownership; there is no stored balance to
// drift from it. Pending rows are excluded (conservative) and exposed
// separately via PendingDelta, and failed rows never count.
type Reader struct {
	DB *gorm.DB
}

// Balance returns the party's holdings of a unit type:
// Σ confirmed amounts received − Σ confirmed amounts sent.
func (r *Reader) Balance(ctx context.Context, party, unitType ids.ID) (float64, error) {
	received, err := r.sum(ctx, unitType, "receiver_id", party, domain.TxStatusConfirmed)
	if err != nil {
		return 0, err
	}
	sent, err := r.sum(ctx, unitType, "sender_id", party, domain.TxStatusConfirmed)
	if err != nil {
		return 0, err
	}
	return received - sent, nil
}

// PendingDelta returns the net effect pending transactions would have on the
// party's balance if they all confirmed. Callers that need to fail closed
// against in-flight settlements subtract outgoing pending from Balance.
func (r *Reader) PendingDelta(ctx context.Context, party, unitType ids.ID) (float64, error) {
	received, err := r.sum(ctx, unitType, "receiver_id", party, domain.TxStatusPending)
	if err != nil {
		return 0, err
	}
	sent, err := r.sum(ctx, unitType, "sender_id", party, domain.TxStatusPending)
	if err != nil {
		return 0, err
	}
	return received - sent, nil
}

// ConfirmedMintTotal returns the sum of confirmed mint amounts for a unit
// type; currentSupply must always equal it.
func (r *Reader) ConfirmedMintTotal(ctx context.Context, unitType ids.ID) (float64, error) {
	var total float64
	err := r.DB.WithContext(ctx).Model(&domain.Transaction{}).
		Where("unit_type_id = ? AND kind = ? AND status = ?", unitType, domain.TxKindMint, domain.TxStatusConfirmed).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *Reader) sum(ctx context.Context, unitType ids.ID, column string, party ids.ID, status string) (float64, error) {
	var total float64
	err := r.DB.WithContext(ctx).Model(&domain.Transaction{}).
		Where(column+" = ? AND unit_type_id = ? AND status = ?", party, unitType, status).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
