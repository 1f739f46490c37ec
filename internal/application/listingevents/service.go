package listingevents

import (
	"context"
	"errors"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"gorm.io/gorm"
)

// Service reads the listing lifecycle audit trail. Events are written by the
// listings and settlement services; nothing updates or deletes them.
type Service struct {
	DB *gorm.DB
}

// ByListing returns a listing's events oldest first.
func (s *Service) ByListing(ctx context.Context, listingID ids.ID) ([]domain.ListingEvent, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Listing %s not found", listingID)
		}
		return nil, err
	}

	var events []domain.ListingEvent
	if err := s.DB.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ByActor returns the events an actor triggered, newest first.
func (s *Service) ByActor(ctx context.Context, actorID ids.ID) ([]domain.ListingEvent, error) {
	var events []domain.ListingEvent
	err := s.DB.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}
