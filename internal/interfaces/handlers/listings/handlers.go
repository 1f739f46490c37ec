package listings

import (
	"strconv"
	"time"

	listsvc "kabonia-backend/internal/application/listings"
	"kabonia-backend/internal/pkg/ids"
	"kabonia-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *listsvc.Service
}

// POST /api/v1/listings
func (h *Handlers) Create(c *fiber.Ctx) error {
	var body struct {
		UnitTypeID string  `json:"unit_type_id"`
		SellerID   string  `json:"seller_id"`
		Amount     float64 `json:"amount"`
		Price      float64 `json:"price"`
		ExpiresAt  string  `json:"expires_at"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.UnitTypeID == "" || body.SellerID == "" || body.ExpiresAt == "" {
		return response.Error(c, "unit_type_id, seller_id, amount, price and expires_at are required", 400, nil)
	}
	unitTypeID, err := ids.Parse(body.UnitTypeID)
	if err != nil {
		return response.Error(c, "Invalid unit_type_id format", 400, nil)
	}
	sellerID, err := ids.Parse(body.SellerID)
	if err != nil {
		return response.Error(c, "Invalid seller_id format", 400, nil)
	}
	expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt)
	if err != nil {
		return response.Error(c, "expires_at must be an RFC 3339 timestamp", 400, nil)
	}

	listing, err := h.Service.Create(c.Context(), listsvc.CreateListingInput{
		UnitTypeID: unitTypeID,
		SellerID:   sellerID,
		Amount:     body.Amount,
		Price:      body.Price,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

// POST /api/v1/listings/:listing_id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	listingID, err := ids.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	var body struct {
		CallerID string `json:"caller_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.CallerID == "" {
		return response.Error(c, "caller_id is required", 400, nil)
	}
	callerID, err := ids.Parse(body.CallerID)
	if err != nil {
		return response.Error(c, "Invalid caller_id format", 400, nil)
	}

	listing, err := h.Service.Cancel(c.Context(), listingID, callerID)
	if err != nil {
		return err
	}
	return response.Success(c, "Listing cancelled successfully", listing, nil)
}

// GET /api/v1/listings
func (h *Handlers) List(c *fiber.Ctx) error {
	var filter listsvc.ListFilter
	if s := c.Query("unit_type_id"); s != "" {
		id, err := ids.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid unit_type_id format", 400, nil)
		}
		filter.UnitTypeID = &id
	}
	if s := c.Query("seller_id"); s != "" {
		id, err := ids.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid seller_id format", 400, nil)
		}
		filter.SellerID = &id
	}
	if s := c.Query("min_price"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return response.Error(c, "Invalid min_price", 400, nil)
		}
		filter.MinPrice = &v
	}
	if s := c.Query("max_price"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return response.Error(c, "Invalid max_price", 400, nil)
		}
		filter.MaxPrice = &v
	}
	filter.Page = c.QueryInt("page", 1)
	filter.Limit = c.QueryInt("limit", 0)

	listings, err := h.Service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return response.Success(c, "Listings fetched successfully", listings, fiber.Map{
		"page":  filter.Page,
		"count": len(listings),
	})
}

// GET /api/v1/listings/:listing_id
func (h *Handlers) GetByID(c *fiber.Ctx) error {
	listingID, err := ids.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	listing, err := h.Service.GetByID(c.Context(), listingID)
	if err != nil {
		return err
	}
	return response.Success(c, "Listing fetched successfully", listing, nil)
}

// GET /api/v1/listings/seller/:seller_id
func (h *Handlers) BySeller(c *fiber.Ctx) error {
	sellerID, err := ids.Parse(c.Params("seller_id"))
	if err != nil {
		return response.Error(c, "Invalid seller_id format", 400, nil)
	}
	listings, err := h.Service.BySeller(c.Context(), sellerID)
	if err != nil {
		return err
	}
	return response.Success(c, "Seller listings fetched successfully", listings, nil)
}
