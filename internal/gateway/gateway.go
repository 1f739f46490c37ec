package gateway

import (
	"context"

	"kabonia-backend/internal/pkg/ids"
)

// CreateUnitTypeRequest asks the external ledger to create custody for a new
// unit type with its initial supply.
type CreateUnitTypeRequest struct {
	ProjectID      ids.ID  `json:"project_id"`
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	Decimals       int     `json:"decimals"`
	InitialSupply  float64 `json:"initial_supply"`
	IdempotencyKey string  `json:"-"`
}

// CreateUnitTypeResult carries the external unit-type identifier and the
// transaction that created it.
type CreateUnitTypeResult struct {
	ExternalID   string `json:"external_id"`
	ExternalTxID string `json:"transaction_id"`
}

// MintRequest mints additional units of an existing external unit type.
type MintRequest struct {
	ExternalID     string  `json:"external_id"`
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"-"`
}

// TransferRequest moves custody between two parties.
type TransferRequest struct {
	ExternalID     string  `json:"external_id"`
	From           ids.ID  `json:"from"`
	To             ids.ID  `json:"to"`
	Amount         float64 `json:"amount"`
	IdempotencyKey string  `json:"-"`
}

// Gateway is the external distributed ledger collaborator. Calls are
// blocking with a bounded timeout and asynchronous-to-finality: a returned
// transaction id means the request was accepted, not permanently settled.
// None of the calls are idempotent by themselves; callers key each request
// with an idempotency token derived from the local operation so a retried
// network call cannot double-apply.
type Gateway interface {
	CreateUnitType(ctx context.Context, req CreateUnitTypeRequest) (*CreateUnitTypeResult, error)
	Mint(ctx context.Context, req MintRequest) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (string, error)
	RecordAuditEvent(ctx context.Context, topicID string, message interface{}) (string, error)
}
