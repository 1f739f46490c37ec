package tokens

import (
	setsvc "kabonia-backend/internal/application/settlement"
	toksvc "kabonia-backend/internal/application/tokenization"
	"kabonia-backend/internal/ledger"
	"kabonia-backend/internal/pkg/ids"
	"kabonia-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service    *toksvc.Service
	Ledger     *ledger.Reader
	Settlement *setsvc.Service
}

// POST /api/v1/tokens/tokenize
func (h *Handlers) Tokenize(c *fiber.Ctx) error {
	var body struct {
		ProjectID          string   `json:"project_id"`
		CallerID           string   `json:"caller_id"`
		Amount             *float64 `json:"amount"`
		Notes              string   `json:"notes"`
		VerificationMethod string   `json:"verification_method"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.ProjectID == "" || body.CallerID == "" {
		return response.Error(c, "project_id and caller_id are required", 400, nil)
	}
	projectID, err := ids.Parse(body.ProjectID)
	if err != nil {
		return response.Error(c, "Invalid project_id format", 400, nil)
	}
	callerID, err := ids.Parse(body.CallerID)
	if err != nil {
		return response.Error(c, "Invalid caller_id format", 400, nil)
	}
	if body.Amount != nil && *body.Amount <= 0 {
		return response.Error(c, "amount must be a positive number", 400, nil)
	}

	result, err := h.Service.TokenizeProject(c.Context(), projectID, callerID, toksvc.TokenizeOptions{
		Amount:             body.Amount,
		Notes:              body.Notes,
		VerificationMethod: body.VerificationMethod,
	})
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Project tokenized successfully", result, nil)
}

// POST /api/v1/tokens/mint
func (h *Handlers) MintAdditional(c *fiber.Ctx) error {
	var body struct {
		UnitTypeID string  `json:"unit_type_id"`
		OwnerID    string  `json:"owner_id"`
		Amount     float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.UnitTypeID == "" || body.OwnerID == "" {
		return response.Error(c, "unit_type_id, owner_id and amount are required", 400, nil)
	}
	unitTypeID, err := ids.Parse(body.UnitTypeID)
	if err != nil {
		return response.Error(c, "Invalid unit_type_id format", 400, nil)
	}
	ownerID, err := ids.Parse(body.OwnerID)
	if err != nil {
		return response.Error(c, "Invalid owner_id format", 400, nil)
	}

	tx, err := h.Service.MintAdditional(c.Context(), unitTypeID, body.Amount, ownerID)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Additional supply minted successfully", tx, nil)
}

// POST /api/v1/tokens/transfer
func (h *Handlers) Transfer(c *fiber.Ctx) error {
	var body struct {
		UnitTypeID string  `json:"unit_type_id"`
		SenderID   string  `json:"sender_id"`
		ReceiverID string  `json:"receiver_id"`
		Amount     float64 `json:"amount"`
		Memo       string  `json:"memo"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.UnitTypeID == "" || body.SenderID == "" || body.ReceiverID == "" {
		return response.Error(c, "unit_type_id, sender_id, receiver_id and amount are required", 400, nil)
	}
	unitTypeID, err := ids.Parse(body.UnitTypeID)
	if err != nil {
		return response.Error(c, "Invalid unit_type_id format", 400, nil)
	}
	senderID, err := ids.Parse(body.SenderID)
	if err != nil {
		return response.Error(c, "Invalid sender_id format", 400, nil)
	}
	receiverID, err := ids.Parse(body.ReceiverID)
	if err != nil {
		return response.Error(c, "Invalid receiver_id format", 400, nil)
	}

	tx, err := h.Settlement.ExecuteTransfer(c.Context(), unitTypeID, senderID, receiverID, body.Amount, body.Memo)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Units transferred successfully", tx, nil)
}

// GET /api/v1/tokens/unit-types
func (h *Handlers) ListUnitTypes(c *fiber.Ctx) error {
	var projectID *ids.ID
	if s := c.Query("project_id"); s != "" {
		id, err := ids.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid project_id format", 400, nil)
		}
		projectID = &id
	}
	unitTypes, err := h.Service.ListUnitTypes(c.Context(), projectID, c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return response.Success(c, "Unit types fetched successfully", unitTypes, nil)
}

// GET /api/v1/tokens/unit-types/:unit_type_id
func (h *Handlers) GetUnitType(c *fiber.Ctx) error {
	unitTypeID, err := ids.Parse(c.Params("unit_type_id"))
	if err != nil {
		return response.Error(c, "Invalid unit_type_id format", 400, nil)
	}
	unitType, err := h.Service.GetUnitType(c.Context(), unitTypeID)
	if err != nil {
		return err
	}
	return response.Success(c, "Unit type fetched successfully", unitType, nil)
}

// GET /api/v1/tokens/balance?party_id=&unit_type_id=
//
// Balance is derived from the confirmed transaction log at read time; the
// pending delta is reported separately so callers can see in-flight amounts.
func (h *Handlers) Balance(c *fiber.Ctx) error {
	partyID, err := ids.Parse(c.Query("party_id"))
	if err != nil {
		return response.Error(c, "Invalid party_id format", 400, nil)
	}
	unitTypeID, err := ids.Parse(c.Query("unit_type_id"))
	if err != nil {
		return response.Error(c, "Invalid unit_type_id format", 400, nil)
	}

	balance, err := h.Ledger.Balance(c.Context(), partyID, unitTypeID)
	if err != nil {
		return err
	}
	pending, err := h.Ledger.PendingDelta(c.Context(), partyID, unitTypeID)
	if err != nil {
		return err
	}
	return response.Success(c, "Balance fetched successfully", fiber.Map{
		"party_id":      partyID,
		"unit_type_id":  unitTypeID,
		"balance":       balance,
		"pending_delta": pending,
	}, nil)
}

// GET /api/v1/tokens/readiness/:project_id
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	projectID, err := ids.Parse(c.Params("project_id"))
	if err != nil {
		return response.Error(c, "Invalid project_id format", 400, nil)
	}
	report, err := h.Service.Readiness(c.Context(), projectID)
	if err != nil {
		return err
	}
	return response.Success(c, "Readiness checked", report, nil)
}
