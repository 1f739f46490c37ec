package market

import (
	mktsvc "kabonia-backend/internal/application/market"
	setsvc "kabonia-backend/internal/application/settlement"
	"kabonia-backend/internal/pkg/ids"
	"kabonia-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Market     *mktsvc.Service
	Settlement *setsvc.Service
}

// POST /api/v1/market/purchase
func (h *Handlers) Purchase(c *fiber.Ctx) error {
	var body struct {
		ListingID string  `json:"listing_id"`
		BuyerID   string  `json:"buyer_id"`
		Amount    float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.ListingID == "" || body.BuyerID == "" {
		return response.Error(c, "listing_id, buyer_id and amount are required", 400, nil)
	}
	listingID, err := ids.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	buyerID, err := ids.Parse(body.BuyerID)
	if err != nil {
		return response.Error(c, "Invalid buyer_id format", 400, nil)
	}

	result, err := h.Settlement.ExecutePurchase(c.Context(), listingID, buyerID, body.Amount)
	if err != nil {
		return err
	}
	return response.Success(c, "Purchase settled successfully", result, nil)
}

// GET /api/v1/market/summary
func (h *Handlers) Summary(c *fiber.Ctx) error {
	summary, err := h.Market.Summary(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, "Market summary fetched successfully", summary, nil)
}

// GET /api/v1/market/history
func (h *Handlers) History(c *fiber.Ctx) error {
	var filter mktsvc.HistoryFilter
	if s := c.Query("party_id"); s != "" {
		id, err := ids.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid party_id format", 400, nil)
		}
		filter.Party = &id
	}
	if s := c.Query("unit_type_id"); s != "" {
		id, err := ids.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid unit_type_id format", 400, nil)
		}
		filter.UnitTypeID = &id
	}
	if s := c.Query("project_id"); s != "" {
		id, err := ids.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid project_id format", 400, nil)
		}
		filter.ProjectID = &id
	}
	if s := c.Query("kind"); s != "" {
		filter.Kind = &s
	}
	filter.Page = c.QueryInt("page", 1)
	filter.Limit = c.QueryInt("limit", 0)

	txs, err := h.Market.History(c.Context(), filter)
	if err != nil {
		return err
	}
	return response.Success(c, "Transaction history fetched successfully", txs, fiber.Map{
		"page":  filter.Page,
		"count": len(txs),
	})
}
