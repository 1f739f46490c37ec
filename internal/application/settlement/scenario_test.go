package settlement

import (
	"context"
	"testing"
	"time"

	listsvc "kabonia-backend/internal/application/listings"
	toksvc "kabonia-backend/internal/application/tokenization"
	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMarketplaceLifecycle walks the full path: tokenize a verified project,
// list part of the supply, settle two purchases and end with a filled,
// deactivated listing and balances that add up.
func TestMarketplaceLifecycle(t *testing.T) {
	settle, gw, db := setupSettlementTest(t)
	reader := &ledger.Reader{DB: db}
	tokens := &toksvc.Service{DB: db, Gateway: gw, ConfidenceThreshold: 0.8}
	listings := &listsvc.Service{DB: db, Ledger: reader}
	ctx := context.Background()

	owner := ids.New()
	project := &domain.Project{
		Name:                   "Highland Afforestation",
		OwnerID:                owner,
		Status:                 domain.ProjectStatusVerified,
		ProjectType:            "afforestation",
		EstimatedCarbonCapture: 1000,
	}
	require.NoError(t, db.Create(project).Error)

	tokenized, err := tokens.TokenizeProject(ctx, project.ProjectID, owner, toksvc.TokenizeOptions{})
	require.NoError(t, err)
	unitTypeID := tokenized.UnitType.UnitTypeID

	balance, err := reader.Balance(ctx, owner, unitTypeID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, balance)

	listing, err := listings.Create(ctx, listsvc.CreateListingInput{
		UnitTypeID: unitTypeID,
		SellerID:   owner,
		Amount:     400,
		Price:      10,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 400.0, listing.Remaining)

	buyerA := ids.New()
	resultA, err := settle.ExecutePurchase(ctx, listing.ListingID, buyerA, 150)
	require.NoError(t, err)
	assert.Equal(t, 250.0, resultA.Listing.Remaining)

	balA, err := reader.Balance(ctx, buyerA, unitTypeID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, balA)
	balOwner, err := reader.Balance(ctx, owner, unitTypeID)
	require.NoError(t, err)
	assert.Equal(t, 850.0, balOwner)

	// B asks for more than remains
	buyerB := ids.New()
	_, err = settle.ExecutePurchase(ctx, listing.ListingID, buyerB, 300)
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientInventory))

	resultB, err := settle.ExecutePurchase(ctx, listing.ListingID, buyerB, 250)
	require.NoError(t, err)
	assert.Zero(t, resultB.Listing.Remaining)
	assert.False(t, resultB.Listing.Active)

	// remaining + confirmed buys == amount, and nobody went negative
	var sold float64
	require.NoError(t, db.Model(&domain.Transaction{}).
		Where("listing_id = ? AND kind = ? AND status = ?", listing.ListingID, domain.TxKindBuy, domain.TxStatusConfirmed).
		Select("COALESCE(SUM(amount), 0)").Scan(&sold).Error)
	assert.Equal(t, 400.0, sold)

	for _, party := range []ids.ID{owner, buyerA, buyerB} {
		bal, err := reader.Balance(ctx, party, unitTypeID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal, 0.0)
	}

	// The seller can immediately relist what is left
	_, err = listings.Create(ctx, listsvc.CreateListingInput{
		UnitTypeID: unitTypeID,
		SellerID:   owner,
		Amount:     600,
		Price:      11,
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}
