package listings

import (
	"context"
	"testing"
	"time"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupListingTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Project{}, &domain.UnitType{}, &domain.Listing{}, &domain.ListingEvent{}, &domain.Transaction{}))
	return &Service{DB: db, Ledger: &ledger.Reader{DB: db}}, db
}

// seedHolding creates an active project with a unit type and credits the
// seller with a confirmed mint of the given amount.
func seedHolding(t *testing.T, db *gorm.DB, seller ids.ID, amount float64) *domain.UnitType {
	project := &domain.Project{
		Name:        "Peatland Recovery",
		OwnerID:     seller,
		Status:      domain.ProjectStatusActive,
		ProjectType: "peatland",
	}
	require.NoError(t, db.Create(project).Error)
	unitType := &domain.UnitType{
		ExternalID:    "0.0." + ids.New().String()[:8],
		ProjectID:     project.ProjectID,
		Name:          project.Name + " Carbon Credits",
		Symbol:        "CC_PEA",
		Decimals:      2,
		InitialSupply: amount,
		CurrentSupply: amount,
		CreatorID:     seller,
	}
	require.NoError(t, db.Create(unitType).Error)
	require.NoError(t, db.Create(&domain.Transaction{
		UnitTypeID: unitType.UnitTypeID,
		ProjectID:  project.ProjectID,
		Kind:       domain.TxKindMint,
		ReceiverID: seller,
		Amount:     amount,
		Status:     domain.TxStatusConfirmed,
	}).Error)
	return unitType
}

func TestCreate_Success(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	listing, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     60,
		Price:      12.5,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 60.0, listing.Amount)
	assert.Equal(t, 60.0, listing.Remaining)
	assert.True(t, listing.Active)

	var events []domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ListingEventCreated, events[0].EventType)
}

func TestCreate_InsufficientBalance(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	_, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     101,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientBalance))
}

func TestCreate_CountsUnitsCommittedToOtherListings(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	_, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     70,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// 30 left unlisted; listing 31 more must fail even though balance is 100
	_, err = svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     31,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientBalance))

	_, err = svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     30,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestCreate_ValidatesInput(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	base := CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     10,
		Price:      5,
		ExpiresAt:  time.Now().Add(time.Hour),
	}

	in := base
	in.Amount = 0
	_, err := svc.Create(context.Background(), in)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidInput))

	in = base
	in.Price = -1
	_, err = svc.Create(context.Background(), in)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidInput))

	in = base
	in.ExpiresAt = time.Now().Add(-time.Minute)
	_, err = svc.Create(context.Background(), in)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidInput))
}

func TestCancel_SellerOnly(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	listing, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     40,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), listing.ListingID, ids.New())
	assert.True(t, apperror.Is(err, apperror.CodeUnauthorized))

	cancelled, err := svc.Cancel(context.Background(), listing.ListingID, seller)
	require.NoError(t, err)
	assert.False(t, cancelled.Active)

	// Cancelling twice is an invalid state
	_, err = svc.Cancel(context.Background(), listing.ListingID, seller)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState))

	var events []domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.ListingEventCancelled).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestCancel_FreesUnitsForRelisting(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	listing, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     100,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), listing.ListingID, seller)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     100,
		Price:      11,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestList_FiltersAndOrdering(t *testing.T) {
	svc, db := setupListingTest(t)
	sellerA := ids.New()
	sellerB := ids.New()
	unitType := seedHolding(t, db, sellerA, 1000)
	seedTx := &domain.Transaction{
		UnitTypeID: unitType.UnitTypeID,
		ProjectID:  unitType.ProjectID,
		Kind:       domain.TxKindMint,
		ReceiverID: sellerB,
		Amount:     1000,
		Status:     domain.TxStatusConfirmed,
	}
	require.NoError(t, db.Create(seedTx).Error)

	expiry := time.Now().Add(time.Hour)
	for _, tc := range []struct {
		seller ids.ID
		price  float64
	}{
		{sellerA, 20},
		{sellerA, 10},
		{sellerB, 15},
	} {
		_, err := svc.Create(context.Background(), CreateListingInput{
			UnitTypeID: unitType.UnitTypeID,
			SellerID:   tc.seller,
			Amount:     50,
			Price:      tc.price,
			ExpiresAt:  expiry,
		})
		require.NoError(t, err)
	}

	all, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Cheapest first
	assert.Equal(t, 10.0, all[0].Price)
	assert.Equal(t, 15.0, all[1].Price)
	assert.Equal(t, 20.0, all[2].Price)

	bySeller, err := svc.List(context.Background(), ListFilter{SellerID: &sellerB})
	require.NoError(t, err)
	require.Len(t, bySeller, 1)
	assert.Equal(t, sellerB, bySeller[0].SellerID)

	min, max := 12.0, 18.0
	byPrice, err := svc.List(context.Background(), ListFilter{MinPrice: &min, MaxPrice: &max})
	require.NoError(t, err)
	require.Len(t, byPrice, 1)
	assert.Equal(t, 15.0, byPrice[0].Price)
}

func TestList_HidesExpiredBeforeSweep(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 100)

	listing, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     50,
		Price:      10,
		ExpiresAt:  time.Now().Add(50 * time.Millisecond),
	})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	// The sweep has not run, the row still says active, but reads filter it
	out, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, out)

	var raw domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&raw).Error)
	assert.True(t, raw.Active)
}

func TestExpireDue(t *testing.T) {
	svc, db := setupListingTest(t)
	seller := ids.New()
	unitType := seedHolding(t, db, seller, 200)

	expired, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     50,
		Price:      10,
		ExpiresAt:  time.Now().Add(50 * time.Millisecond),
	})
	require.NoError(t, err)
	fresh, err := svc.Create(context.Background(), CreateListingInput{
		UnitTypeID: unitType.UnitTypeID,
		SellerID:   seller,
		Amount:     50,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	n, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var reloadedExpired domain.Listing
	require.NoError(t, db.Where("listing_id = ?", expired.ListingID).First(&reloadedExpired).Error)
	assert.False(t, reloadedExpired.Active)
	var reloadedFresh domain.Listing
	require.NoError(t, db.Where("listing_id = ?", fresh.ListingID).First(&reloadedFresh).Error)
	assert.True(t, reloadedFresh.Active)

	var events []domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ? AND event_type = ?", expired.ListingID, domain.ListingEventExpired).Find(&events).Error)
	assert.Len(t, events, 1)

	// Idempotent: a second sweep finds nothing
	n, err = svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetByID_NotFound(t *testing.T) {
	svc, _ := setupListingTest(t)
	_, err := svc.GetByID(context.Background(), ids.New())
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}
