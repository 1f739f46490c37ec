package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/gateway"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service executes purchases against listings. Inventory is linearized by a
// conditional decrement on the persisted remaining column; the external
// custody transfer runs with no in-process lock held, so slow gateway calls
// never serialize unrelated purchases.
type Service struct {
	DB      *gorm.DB
	Gateway gateway.Gateway
	Ledger  *ledger.Reader

	// MaxRetries bounds internal retries when the conditional decrement
	// loses a race that may still succeed (another buyer took part of the
	// inventory but enough remains).
	MaxRetries int
}

// PurchaseResult is returned on a successful settlement.
type PurchaseResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Listing     *domain.Listing     `json:"listing"`
}

// ExecutePurchase settles a purchase of amount units from a listing.
//
// The sequence is reserve, then transfer, then confirm. The conditional
// decrement reserves inventory before the external call, so two racing
// buyers can never both reserve the same units. The gateway transfer is the
// irreversible step; a gateway failure compensates by restoring the
// reservation and failing the pending transaction, leaving the listing
// exactly as it was.
func (s *Service) ExecutePurchase(ctx context.Context, listingID, buyerID ids.ID, amount float64) (*PurchaseResult, error) {
	if amount <= 0 {
		return nil, apperror.InvalidInput("purchase amount must be positive")
	}
	if buyerID.IsNil() {
		return nil, apperror.InvalidInput("buyer id is required")
	}

	retries := s.MaxRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		result, err := s.attemptPurchase(ctx, listingID, buyerID, amount)
		if err == nil {
			return result, nil
		}
		if apperror.Is(err, apperror.CodeConcurrentModification) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *Service) attemptPurchase(ctx context.Context, listingID, buyerID ids.ID, amount float64) (*PurchaseResult, error) {
	now := time.Now()

	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Listing %s not found", listingID)
		}
		return nil, err
	}
	if !listing.Active {
		return nil, apperror.InvalidState("This listing is no longer active")
	}
	if listing.Expired(now) {
		return nil, apperror.InvalidState("This listing has expired")
	}
	if listing.Remaining < amount {
		return nil, apperror.InsufficientInventory("Not enough units available. Requested: %.2f, Available: %.2f", amount, listing.Remaining)
	}
	if listing.SellerID == buyerID {
		return nil, apperror.SelfTrade("You cannot buy your own listing")
	}

	var unitType domain.UnitType
	if err := s.DB.WithContext(ctx).Where("unit_type_id = ?", listing.UnitTypeID).First(&unitType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Unit type %s not found", listing.UnitTypeID)
		}
		return nil, err
	}

	price := listing.Price
	totalPrice := round2(amount * price)
	sellerID := listing.SellerID

	pendingTx := &domain.Transaction{
		UnitTypeID: listing.UnitTypeID,
		ProjectID:  listing.ProjectID,
		Kind:       domain.TxKindBuy,
		SenderID:   &sellerID,
		ReceiverID: buyerID,
		Amount:     amount,
		Price:      &price,
		TotalPrice: &totalPrice,
		Status:     domain.TxStatusPending,
		ListingID:  &listing.ListingID,
		Memo:       fmt.Sprintf("Purchased %.2f units at %.2f each", amount, price),
	}

	// Reserve: the conditional decrement is the linearization point for this
	// listing's inventory. Zero rows affected means the predicate no longer
	// held at write time; re-reading classifies why.
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND active = ? AND expires_at > ? AND remaining >= ?", listingID, true, now, amount).
			Update("remaining", gorm.Expr("remaining - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.classifyLostReservation(tx, listingID, amount)
		}
		return tx.Create(pendingTx).Error
	})
	if err != nil {
		return nil, err
	}

	externalTxID, gwErr := s.Gateway.Transfer(ctx, gateway.TransferRequest{
		ExternalID:     unitType.ExternalID,
		From:           sellerID,
		To:             buyerID,
		Amount:         amount,
		IdempotencyKey: pendingTx.TxID.String(),
	})
	if gwErr != nil {
		if rbErr := s.compensate(ctx, listingID, pendingTx.TxID, amount); rbErr != nil {
			// The reservation row and pending transaction identify the stuck
			// settlement; the reconciliation sweep resolves it by key.
			log.Error().Err(rbErr).Str("tx_id", pendingTx.TxID.String()).Msg("settlement compensation failed")
		}
		log.Warn().Err(gwErr).
			Str("listing_id", listingID.String()).
			Str("tx_id", pendingTx.TxID.String()).
			Msg("external transfer failed, purchase rolled back")
		return nil, apperror.ExternalLedger(gwErr, "external transfer failed for listing %s", listingID)
	}

	consensus := time.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Transaction{}).
			Where("tx_id = ? AND status = ?", pendingTx.TxID, domain.TxStatusPending).
			Updates(map[string]interface{}{
				"external_tx_id":      externalTxID,
				"status":              domain.TxStatusConfirmed,
				"consensus_timestamp": consensus,
			}).Error; err != nil {
			return err
		}
		return deactivateIfFilled(tx, listingID, &buyerID, pendingTx.TxID.String())
	})
	if err != nil {
		return nil, err
	}

	pendingTx.ExternalTxID = &externalTxID
	pendingTx.Status = domain.TxStatusConfirmed
	pendingTx.ConsensusTimestamp = &consensus

	var updated domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&updated).Error; err != nil {
		return nil, err
	}

	s.recordAudit(ctx, listing.ProjectID, map[string]interface{}{
		"type":        "TRADE_SETTLED",
		"listing_id":  listingID.String(),
		"tx_id":       pendingTx.TxID.String(),
		"amount":      amount,
		"total_price": totalPrice,
		"timestamp":   consensus.UTC().Format(time.RFC3339),
	})

	log.Info().
		Str("listing_id", listingID.String()).
		Str("buyer_id", buyerID.String()).
		Float64("amount", amount).
		Float64("total_price", totalPrice).
		Msg("settled purchase")

	return &PurchaseResult{Transaction: pendingTx, Listing: &updated}, nil
}

// classifyLostReservation turns a failed conditional decrement into the
// right error: terminal states are surfaced, a still-winnable race becomes
// ConcurrentModification for the caller loop to retry.
func (s *Service) classifyLostReservation(tx *gorm.DB, listingID ids.ID, amount float64) error {
	var current domain.Listing
	if err := tx.Where("listing_id = ?", listingID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("Listing %s not found", listingID)
		}
		return err
	}
	if !current.Active {
		return apperror.InvalidState("This listing is no longer active")
	}
	if current.Expired(time.Now()) {
		return apperror.InvalidState("This listing has expired")
	}
	if current.Remaining < amount {
		return apperror.InsufficientInventory("Not enough units available. Requested: %.2f, Available: %.2f", amount, current.Remaining)
	}
	return apperror.ConcurrentModification("listing %s changed concurrently", listingID)
}

// compensate undoes a reservation after an external transfer failure. The
// pending record flips to failed first, conditionally, so a concurrent
// resolution of the same record can never restore the inventory twice.
func (s *Service) compensate(ctx context.Context, listingID, txID ids.ID, amount float64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Transaction{}).
			Where("tx_id = ? AND status = ?", txID, domain.TxStatusPending).
			Update("status", domain.TxStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already resolved elsewhere, inventory went with it.
			return nil
		}
		if err := tx.Model(&domain.Listing{}).
			Where("listing_id = ?", listingID).
			Update("remaining", gorm.Expr("remaining + ?", amount)).Error; err != nil {
			return err
		}
		return deactivateIfFilled(tx, listingID, nil, "")
	})
}

// deactivateIfFilled flips the listing inactive once its inventory is truly
// gone: remaining at zero with no pending purchase still holding a
// reservation against it. A transient reservation must never fill a listing
// it may later hand back.
func deactivateIfFilled(tx *gorm.DB, listingID ids.ID, actorID *ids.ID, filledBy string) error {
	res := tx.Model(&domain.Listing{}).
		Where("listing_id = ? AND active = ? AND remaining <= 0", listingID, true).
		Where("NOT EXISTS (SELECT 1 FROM transactions WHERE transactions.listing_id = ? AND transactions.status = ?)",
			listingID, domain.TxStatusPending).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	data := map[string]interface{}{}
	if filledBy != "" {
		data["filled_by"] = filledBy
	}
	eventData, _ := json.Marshal(data)
	return tx.Create(&domain.ListingEvent{
		ListingID: listingID,
		EventType: domain.ListingEventFilled,
		ActorID:   actorID,
		EventData: datatypes.JSON(eventData),
	}).Error
}

// ResolveStale fails pending settlements that have outlived their window and
// hands reserved inventory back to their listings. A pending row normally
// resolves within one request; an older one means the process died
// mid-settlement or compensation itself failed.
func (s *Service) ResolveStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	var stale []domain.Transaction
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND kind IN ? AND created_at < ?",
			domain.TxStatusPending, []string{domain.TxKindBuy, domain.TxKindTransfer}, cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	resolved := 0
	for i := range stale {
		st := &stale[i]
		var err error
		if st.Kind == domain.TxKindBuy && st.ListingID != nil {
			err = s.compensate(ctx, *st.ListingID, st.TxID, st.Amount)
		} else {
			// Direct transfers hold no listing inventory.
			err = s.DB.WithContext(ctx).Model(&domain.Transaction{}).
				Where("tx_id = ? AND status = ?", st.TxID, domain.TxStatusPending).
				Update("status", domain.TxStatusFailed).Error
		}
		if err != nil {
			log.Error().Err(err).Str("tx_id", st.TxID.String()).Msg("stale settlement not resolved")
			continue
		}
		resolved++
	}
	if resolved > 0 {
		log.Warn().Int("count", resolved).Msg("resolved stale pending settlements")
	}
	return resolved, nil
}

// ExecuteTransfer moves units between parties outside the marketplace. The
// sender's spendable amount is the derived balance minus outgoing pending
// settlements and minus units still promised to the sender's active listings.
func (s *Service) ExecuteTransfer(ctx context.Context, unitTypeID, senderID, receiverID ids.ID, amount float64, memo string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.InvalidInput("transfer amount must be positive")
	}
	if senderID.IsNil() || receiverID.IsNil() {
		return nil, apperror.InvalidInput("sender and receiver are required")
	}
	if senderID == receiverID {
		return nil, apperror.InvalidInput("sender and receiver must differ")
	}

	var unitType domain.UnitType
	if err := s.DB.WithContext(ctx).Where("unit_type_id = ?", unitTypeID).First(&unitType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Unit type %s not found", unitTypeID)
		}
		return nil, err
	}

	balance, err := s.Ledger.Balance(ctx, senderID, unitTypeID)
	if err != nil {
		return nil, err
	}
	pending, err := s.Ledger.PendingDelta(ctx, senderID, unitTypeID)
	if err != nil {
		return nil, err
	}
	if pending < 0 {
		balance += pending
	}
	var committed float64
	if err := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("seller_id = ? AND unit_type_id = ? AND active = ? AND expires_at > ?", senderID, unitTypeID, true, time.Now()).
		Select("COALESCE(SUM(remaining), 0)").
		Scan(&committed).Error; err != nil {
		return nil, err
	}
	available := balance - committed
	if available < amount {
		return nil, apperror.InsufficientBalance("Not enough units to transfer. Available: %.2f, tried to transfer %.2f", available, amount)
	}

	if memo == "" {
		memo = fmt.Sprintf("Transferred %.2f units", amount)
	}
	pendingTx := &domain.Transaction{
		UnitTypeID: unitTypeID,
		ProjectID:  unitType.ProjectID,
		Kind:       domain.TxKindTransfer,
		SenderID:   &senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Status:     domain.TxStatusPending,
		Memo:       memo,
	}
	if err := s.DB.WithContext(ctx).Create(pendingTx).Error; err != nil {
		return nil, err
	}

	externalTxID, gwErr := s.Gateway.Transfer(ctx, gateway.TransferRequest{
		ExternalID:     unitType.ExternalID,
		From:           senderID,
		To:             receiverID,
		Amount:         amount,
		IdempotencyKey: pendingTx.TxID.String(),
	})
	if gwErr != nil {
		if rbErr := s.DB.WithContext(ctx).Model(&domain.Transaction{}).
			Where("tx_id = ? AND status = ?", pendingTx.TxID, domain.TxStatusPending).
			Update("status", domain.TxStatusFailed).Error; rbErr != nil {
			log.Error().Err(rbErr).Str("tx_id", pendingTx.TxID.String()).Msg("transfer compensation failed")
		}
		return nil, apperror.ExternalLedger(gwErr, "external transfer failed for unit type %s", unitTypeID)
	}

	consensus := time.Now()
	if err := s.DB.WithContext(ctx).Model(&domain.Transaction{}).
		Where("tx_id = ? AND status = ?", pendingTx.TxID, domain.TxStatusPending).
		Updates(map[string]interface{}{
			"external_tx_id":      externalTxID,
			"status":              domain.TxStatusConfirmed,
			"consensus_timestamp": consensus,
		}).Error; err != nil {
		return nil, err
	}
	pendingTx.ExternalTxID = &externalTxID
	pendingTx.Status = domain.TxStatusConfirmed
	pendingTx.ConsensusTimestamp = &consensus

	s.recordAudit(ctx, unitType.ProjectID, map[string]interface{}{
		"type":         "UNITS_TRANSFERRED",
		"unit_type_id": unitTypeID.String(),
		"tx_id":        pendingTx.TxID.String(),
		"amount":       amount,
		"timestamp":    consensus.UTC().Format(time.RFC3339),
	})

	log.Info().
		Str("unit_type_id", unitTypeID.String()).
		Str("sender_id", senderID.String()).
		Str("receiver_id", receiverID.String()).
		Float64("amount", amount).
		Msg("transferred units")

	return pendingTx, nil
}

// recordAudit appends a best-effort trade note to the project's audit topic.
// Failures are logged, never surfaced: the local record is already durable.
func (s *Service) recordAudit(ctx context.Context, projectID ids.ID, message map[string]interface{}) {
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		return
	}
	if project.AuditTopicID == "" {
		return
	}
	if _, err := s.Gateway.RecordAuditEvent(ctx, project.AuditTopicID, message); err != nil {
		log.Warn().Err(err).Str("project_id", projectID.String()).Msg("audit event not recorded")
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
