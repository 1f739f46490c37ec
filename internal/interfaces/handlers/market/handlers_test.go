package market

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mktsvc "kabonia-backend/internal/application/market"
	setsvc "kabonia-backend/internal/application/settlement"
	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/gateway"
	"kabonia-backend/internal/middleware"
	"kabonia-backend/internal/pkg/ids"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubGateway struct{}

func (stubGateway) CreateUnitType(ctx context.Context, req gateway.CreateUnitTypeRequest) (*gateway.CreateUnitTypeResult, error) {
	return &gateway.CreateUnitTypeResult{ExternalID: "0.0.1", ExternalTxID: "ext-create"}, nil
}

func (stubGateway) Mint(ctx context.Context, req gateway.MintRequest) (string, error) {
	return "ext-mint", nil
}

func (stubGateway) Transfer(ctx context.Context, req gateway.TransferRequest) (string, error) {
	return "ext-transfer", nil
}

func (stubGateway) RecordAuditEvent(ctx context.Context, topicID string, message interface{}) (string, error) {
	return "seq-1", nil
}

func setupMarketApp(t *testing.T) (*fiber.App, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Project{}, &domain.UnitType{}, &domain.Listing{}, &domain.ListingEvent{}, &domain.Transaction{}))

	h := &Handlers{
		Market:     &mktsvc.Service{DB: db},
		Settlement: &setsvc.Service{DB: db, Gateway: stubGateway{}, MaxRetries: 3},
	}
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Post("/api/v1/market/purchase", h.Purchase)
	app.Get("/api/v1/market/summary", h.Summary)
	app.Get("/api/v1/market/history", h.History)
	return app, db
}

func seedOpenListing(t *testing.T, db *gorm.DB, amount, price float64) *domain.Listing {
	seller := ids.New()
	unitType := &domain.UnitType{
		ExternalID:    "0.0." + ids.New().String()[:8],
		ProjectID:     ids.New(),
		Name:          "Forest Credits",
		Symbol:        "CC_FOR",
		Decimals:      2,
		InitialSupply: amount,
		CurrentSupply: amount,
		CreatorID:     seller,
	}
	require.NoError(t, db.Create(unitType).Error)
	listing := &domain.Listing{
		UnitTypeID: unitType.UnitTypeID,
		ProjectID:  unitType.ProjectID,
		SellerID:   seller,
		Amount:     amount,
		Remaining:  amount,
		Price:      price,
		ExpiresAt:  time.Now().Add(time.Hour),
		Active:     true,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func TestPurchase_HTTP(t *testing.T) {
	app, db := setupMarketApp(t)
	listing := seedOpenListing(t, db, 100, 10)
	buyer := ids.New()

	body := `{"listing_id":"` + listing.ListingID.String() + `","buyer_id":"` + buyer.String() + `","amount":40}`
	req := httptest.NewRequest("POST", "/api/v1/market/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var envelope struct {
		Data setsvc.PurchaseResult `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, 60.0, envelope.Data.Listing.Remaining)
	assert.Equal(t, domain.TxStatusConfirmed, envelope.Data.Transaction.Status)
}

func TestPurchase_HTTPSelfTrade(t *testing.T) {
	app, db := setupMarketApp(t)
	listing := seedOpenListing(t, db, 100, 10)

	body := `{"listing_id":"` + listing.ListingID.String() + `","buyer_id":"` + listing.SellerID.String() + `","amount":10}`
	req := httptest.NewRequest("POST", "/api/v1/market/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "SELF_TRADE")
}

func TestPurchase_HTTPValidation(t *testing.T) {
	app, _ := setupMarketApp(t)

	req := httptest.NewRequest("POST", "/api/v1/market/purchase", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestSummaryAndHistory_HTTP(t *testing.T) {
	app, db := setupMarketApp(t)
	listing := seedOpenListing(t, db, 100, 10)
	buyer := ids.New()

	body := `{"listing_id":"` + listing.ListingID.String() + `","buyer_id":"` + buyer.String() + `","amount":25}`
	req := httptest.NewRequest("POST", "/api/v1/market/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/v1/market/summary", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var summary struct {
		Data mktsvc.Summary `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 25.0, summary.Data.TotalVolumeTraded)

	req = httptest.NewRequest("GET", "/api/v1/market/history?party_id="+buyer.String(), nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	var history struct {
		Data []domain.Transaction `json:"data"`
	}
	raw, _ = io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history.Data, 1)
	assert.Equal(t, buyer, history.Data[0].ReceiverID)
}
