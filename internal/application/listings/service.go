package listings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service owns the listing lifecycle: creation, cancellation, expiration.
// Partial fills mutate remaining via the settlement engine, never here.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Reader
}

type CreateListingInput struct {
	UnitTypeID ids.ID
	SellerID   ids.ID
	Amount     float64
	Price      float64
	ExpiresAt  time.Time
}

// Create validates the seller's derived balance against the requested amount
// and opens the listing. Balance comes from the transaction log; units
// already committed to other active listings by this seller are counted as
// unavailable.
func (s *Service) Create(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if in.Amount <= 0 {
		return nil, apperror.InvalidInput("listing amount must be positive")
	}
	if in.Price <= 0 {
		return nil, apperror.InvalidInput("listing price must be positive")
	}
	if !in.ExpiresAt.After(time.Now()) {
		return nil, apperror.InvalidInput("expiration must be in the future")
	}

	var unitType domain.UnitType
	if err := s.DB.WithContext(ctx).Where("unit_type_id = ?", in.UnitTypeID).First(&unitType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Unit type %s not found", in.UnitTypeID)
		}
		return nil, err
	}
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", unitType.ProjectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Project %s not found", unitType.ProjectID)
		}
		return nil, err
	}
	if project.Status != domain.ProjectStatusActive {
		return nil, apperror.InvalidState("Project must be active to list units, current status: %s", project.Status)
	}

	balance, err := s.Ledger.Balance(ctx, in.SellerID, in.UnitTypeID)
	if err != nil {
		return nil, err
	}
	committed, err := s.committedToActiveListings(ctx, in.SellerID, in.UnitTypeID)
	if err != nil {
		return nil, err
	}
	available := balance - committed
	if available < in.Amount {
		return nil, apperror.InsufficientBalance("Not enough units to list. Available: %.2f, tried to list %.2f", available, in.Amount)
	}

	listing := &domain.Listing{
		UnitTypeID: in.UnitTypeID,
		ProjectID:  unitType.ProjectID,
		SellerID:   in.SellerID,
		Amount:     in.Amount,
		Remaining:  in.Amount,
		Price:      in.Price,
		ExpiresAt:  in.ExpiresAt,
		Active:     true,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		eventData, _ := json.Marshal(map[string]interface{}{
			"amount": listing.Amount,
			"price":  listing.Price,
		})
		return tx.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: domain.ListingEventCreated,
			ActorID:   &in.SellerID,
			EventData: datatypes.JSON(eventData),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("listing_id", listing.ListingID.String()).
		Float64("amount", in.Amount).
		Float64("price", in.Price).
		Msg("created listing")

	return listing, nil
}

// Cancel flips an active listing to inactive. Seller-only; conditional on
// active=true so a concurrent fill or expiry sweep cannot be undone.
func (s *Service) Cancel(ctx context.Context, listingID, callerID ids.ID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Listing %s not found", listingID)
		}
		return nil, err
	}
	if listing.SellerID != callerID {
		return nil, apperror.Unauthorized("Not authorized to cancel this listing")
	}
	if !listing.Active {
		return nil, apperror.InvalidState("This listing is already inactive")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND active = ?", listingID, true).
			Update("active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.InvalidState("This listing is already inactive")
		}
		eventData, _ := json.Marshal(map[string]interface{}{"remaining": listing.Remaining})
		return tx.Create(&domain.ListingEvent{
			ListingID: listingID,
			EventType: domain.ListingEventCancelled,
			ActorID:   &callerID,
			EventData: datatypes.JSON(eventData),
		}).Error
	})
	if err != nil {
		return nil, err
	}
	listing.Active = false
	return &listing, nil
}

// ListFilter narrows the marketplace listing query.
type ListFilter struct {
	UnitTypeID *ids.ID
	SellerID   *ids.ID
	MinPrice   *float64
	MaxPrice   *float64
	Page       int
	Limit      int
}

const defaultPageSize = 10

// List returns purchasable listings: active, unexpired, with inventory.
// Expiration is filtered at read time regardless of the sweep.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Listing, error) {
	q := s.DB.WithContext(ctx).
		Where("active = ? AND expires_at > ? AND remaining > 0", true, time.Now())
	if f.UnitTypeID != nil {
		q = q.Where("unit_type_id = ?", *f.UnitTypeID)
	}
	if f.SellerID != nil {
		q = q.Where("seller_id = ?", *f.SellerID)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	var listings []domain.Listing
	err := q.Order("price ASC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&listings).Error
	return listings, err
}

// GetByID returns a listing regardless of state (for detail views).
func (s *Service) GetByID(ctx context.Context, listingID ids.ID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Listing %s not found", listingID)
		}
		return nil, err
	}
	return &listing, nil
}

// BySeller returns all of a seller's listings, newest first.
func (s *Service) BySeller(ctx context.Context, sellerID ids.ID) ([]domain.Listing, error) {
	var listings []domain.Listing
	err := s.DB.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&listings).Error
	return listings, err
}

// ExpireDue deactivates active listings whose expiration has passed and
// records an EXPIRED event for each. Reads already exclude expired listings,
// so this sweep only keeps the stored state tidy.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := time.Now()
	var due []domain.Listing
	if err := s.DB.WithContext(ctx).
		Where("active = ? AND expires_at <= ?", true, now).
		Find(&due).Error; err != nil {
		return 0, err
	}

	expired := 0
	for i := range due {
		l := &due[i]
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&domain.Listing{}).
				Where("listing_id = ? AND active = ?", l.ListingID, true).
				Update("active", false)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil // lost to a concurrent cancel or fill
			}
			eventData, _ := json.Marshal(map[string]interface{}{"remaining": l.Remaining})
			return tx.Create(&domain.ListingEvent{
				ListingID: l.ListingID,
				EventType: domain.ListingEventExpired,
				EventData: datatypes.JSON(eventData),
			}).Error
		})
		if err != nil {
			log.Error().Err(err).Str("listing_id", l.ListingID.String()).Msg("expire sweep failed for listing")
			continue
		}
		expired++
	}
	return expired, nil
}

// committedToActiveListings sums remaining across the seller's active,
// unexpired listings of a unit type: units promised but not yet sold.
func (s *Service) committedToActiveListings(ctx context.Context, sellerID, unitTypeID ids.ID) (float64, error) {
	var total float64
	err := s.DB.WithContext(ctx).Model(&domain.Listing{}).
		Where("seller_id = ? AND unit_type_id = ? AND active = ? AND expires_at > ?", sellerID, unitTypeID, true, time.Now()).
		Select("COALESCE(SUM(remaining), 0)").
		Scan(&total).Error
	return total, err
}
