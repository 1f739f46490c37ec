package listingevents

import (
	lesvc "kabonia-backend/internal/application/listingevents"
	"kabonia-backend/internal/pkg/ids"
	"kabonia-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *lesvc.Service
}

// GET /api/v1/listings/:listing_id/events
func (h *Handlers) ByListing(c *fiber.Ctx) error {
	listingID, err := ids.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	events, err := h.Service.ByListing(c.Context(), listingID)
	if err != nil {
		return err
	}
	return response.Success(c, "Listing events fetched successfully", fiber.Map{"events": events}, nil)
}

// GET /api/v1/listing-events/actor/:actor_id
func (h *Handlers) ByActor(c *fiber.Ctx) error {
	actorID, err := ids.Parse(c.Params("actor_id"))
	if err != nil {
		return response.Error(c, "Invalid actor_id format", 400, nil)
	}
	events, err := h.Service.ByActor(c.Context(), actorID)
	if err != nil {
		return err
	}
	return response.Success(c, "Listing events fetched successfully", fiber.Map{"events": events}, nil)
}
