package market

import (
	"context"
	"encoding/json"
	"time"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/pkg/ids"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	summaryCacheKey   = "market:summary"
	summaryCacheTTL   = 30 * time.Second
	recentTradeWindow = 100
)

// Service serves marketplace read models over the transaction log. Rdb may
// be nil; the summary is then computed on every call.
type Service struct {
	DB  *gorm.DB
	Rdb *redis.Client
}

// HistoryFilter narrows the transaction history query.
type HistoryFilter struct {
	Party      *ids.ID
	UnitTypeID *ids.ID
	ProjectID  *ids.ID
	Kind       *string
	Page       int
	Limit      int
}

const defaultPageSize = 10

// History returns confirmed transactions, newest first. Pending and failed
// rows never appear: history is the audited record, not the in-flight state.
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]domain.Transaction, error) {
	q := s.DB.WithContext(ctx).Where("status = ?", domain.TxStatusConfirmed)
	if f.Party != nil {
		q = q.Where("sender_id = ? OR receiver_id = ?", *f.Party, *f.Party)
	}
	if f.UnitTypeID != nil {
		q = q.Where("unit_type_id = ?", *f.UnitTypeID)
	}
	if f.ProjectID != nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	if f.Kind != nil {
		q = q.Where("kind = ?", *f.Kind)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	var txs []domain.Transaction
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// Summary is the marketplace dashboard aggregate.
type Summary struct {
	AveragePrice       float64              `json:"average_price"`
	ActiveListingCount int64                `json:"active_listing_count"`
	TotalVolumeTraded  float64              `json:"total_volume_traded"`
	TotalValueTraded   float64              `json:"total_value_traded"`
	RecentTransactions []domain.Transaction `json:"recent_transactions"`
}

// Summary computes the market summary, cached in Redis for a short TTL.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	if s.Rdb != nil {
		if b, err := s.Rdb.Get(ctx, summaryCacheKey).Bytes(); err == nil {
			var cached Summary
			if json.Unmarshal(b, &cached) == nil {
				return &cached, nil
			}
		}
	}

	var recent []domain.Transaction
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND kind IN ? AND price IS NOT NULL", domain.TxStatusConfirmed, []string{domain.TxKindBuy, domain.TxKindSell}).
		Order("created_at DESC").
		Limit(recentTradeWindow).
		Find(&recent).Error; err != nil {
		return nil, err
	}

	var priceSum float64
	var priced int
	for _, tx := range recent {
		if tx.Price != nil && *tx.Price > 0 {
			priceSum += *tx.Price
			priced++
		}
	}
	avg := 0.0
	if priced > 0 {
		avg = priceSum / float64(priced)
	}

	var activeCount int64
	if err := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("active = ? AND expires_at > ? AND remaining > 0", true, time.Now()).
		Count(&activeCount).Error; err != nil {
		return nil, err
	}

	type totals struct {
		Volume float64
		Value  float64
	}
	var t totals
	if err := s.DB.WithContext(ctx).Model(&domain.Transaction{}).
		Where("status = ? AND kind IN ?", domain.TxStatusConfirmed, []string{domain.TxKindBuy, domain.TxKindSell}).
		Select("COALESCE(SUM(amount), 0) AS volume, COALESCE(SUM(total_price), 0) AS value").
		Scan(&t).Error; err != nil {
		return nil, err
	}

	summary := &Summary{
		AveragePrice:       avg,
		ActiveListingCount: activeCount,
		TotalVolumeTraded:  t.Volume,
		TotalValueTraded:   t.Value,
	}
	if len(recent) > 5 {
		summary.RecentTransactions = recent[:5]
	} else {
		summary.RecentTransactions = recent
	}

	if s.Rdb != nil {
		if b, err := json.Marshal(summary); err == nil {
			if err := s.Rdb.Set(ctx, summaryCacheKey, b, summaryCacheTTL).Err(); err != nil {
				log.Warn().Err(err).Msg("market summary cache write failed")
			}
		}
	}
	return summary, nil
}
