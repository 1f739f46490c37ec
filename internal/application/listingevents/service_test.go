package listingevents

import (
	"context"
	"testing"
	"time"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupEventsTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.ListingEvent{}))
	return &Service{DB: db}, db
}

func TestByListing(t *testing.T) {
	svc, db := setupEventsTest(t)
	seller := ids.New()
	listing := &domain.Listing{
		UnitTypeID: ids.New(),
		ProjectID:  ids.New(),
		SellerID:   seller,
		Amount:     10,
		Remaining:  10,
		Price:      5,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
	}
	require.NoError(t, db.Create(listing).Error)

	for _, et := range []string{domain.ListingEventCreated, domain.ListingEventCancelled} {
		require.NoError(t, db.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: et,
			ActorID:   &seller,
			EventData: []byte(`{}`),
		}).Error)
	}

	events, err := svc.ByListing(context.Background(), listing.ListingID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.ListingEventCreated, events[0].EventType)
	assert.Equal(t, domain.ListingEventCancelled, events[1].EventType)
}

func TestByListing_NotFound(t *testing.T) {
	svc, _ := setupEventsTest(t)
	_, err := svc.ByListing(context.Background(), ids.New())
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestByActor(t *testing.T) {
	svc, db := setupEventsTest(t)
	actor := ids.New()
	require.NoError(t, db.Create(&domain.ListingEvent{
		ListingID: ids.New(),
		EventType: domain.ListingEventCreated,
		ActorID:   &actor,
		EventData: []byte(`{}`),
	}).Error)
	require.NoError(t, db.Create(&domain.ListingEvent{
		ListingID: ids.New(),
		EventType: domain.ListingEventCreated,
		ActorID:   nil,
		EventData: []byte(`{}`),
	}).Error)

	events, err := svc.ByActor(context.Background(), actor)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
