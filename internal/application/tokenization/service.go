package tokenization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/gateway"
	"kabonia-backend/internal/oracle"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultDecimals = 2

// Service runs the tokenization pipeline: it mints a unit-type balance
// against a verified project exactly once.
type Service struct {
	DB      *gorm.DB
	Gateway gateway.Gateway
	Oracle  oracle.Oracle

	// ConfidenceThreshold gates the oracle: recommendations below it are
	// recorded but never override the fallback amount.
	ConfidenceThreshold float64
}

// TokenizeOptions carries caller overrides for the pipeline.
type TokenizeOptions struct {
	Amount             *float64
	Notes              string
	VerificationMethod string
}

// TokenizeResult is returned on success.
type TokenizeResult struct {
	Project     *domain.Project        `json:"project"`
	UnitType    *domain.UnitType       `json:"unit_type"`
	Transaction *domain.Transaction    `json:"transaction"`
	Valuation   *oracle.Recommendation `json:"valuation,omitempty"`
}

// TokenizeProject mints the initial supply for a verified project. The
// external mint runs first (keyed by project id, so a retry after a local
// persistence failure reuses the orphaned external mint instead of minting
// twice); all local writes then commit in one DB transaction. If the
// external call fails nothing is persisted.
func (s *Service) TokenizeProject(ctx context.Context, projectID, callerID ids.ID, opts TokenizeOptions) (*TokenizeResult, error) {
	if callerID.IsNil() {
		return nil, apperror.InvalidInput("caller id is required")
	}

	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Project %s not found", projectID)
		}
		return nil, err
	}
	if !project.Tokenizable() {
		return nil, apperror.InvalidState("Project must be verified or active. Current status: %s", project.Status)
	}

	var existing domain.UnitType
	err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&existing).Error
	if err == nil {
		return nil, apperror.InvalidState("Project already has a unit type: %s", existing.ExternalID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	amount, valuation := s.resolveAmount(ctx, &project, opts.Amount)
	if amount <= 0 {
		return nil, apperror.InvalidInput("unit amount must be positive (no caller amount, oracle recommendation, or carbon estimate)")
	}

	name := project.Name + " Carbon Credits"
	symbol := unitSymbol(project.ProjectType)

	// External mint first: the irreversible step. The idempotency key is the
	// project id, so the gateway deduplicates a retry after a crash between
	// external success and local commit.
	created, err := s.Gateway.CreateUnitType(ctx, gateway.CreateUnitTypeRequest{
		ProjectID:      project.ProjectID,
		Name:           name,
		Symbol:         symbol,
		Decimals:       defaultDecimals,
		InitialSupply:  amount,
		IdempotencyKey: project.ProjectID.String(),
	})
	if err != nil {
		return nil, apperror.ExternalLedger(err, "external mint failed for project %s", projectID)
	}

	maxSupply := amount * 2
	now := time.Now()

	metadata := map[string]interface{}{
		"project_name":             project.Name,
		"location":                 project.Location,
		"estimated_carbon_capture": project.EstimatedCarbonCapture,
		"verification_method":      verificationMethod(opts.VerificationMethod),
		"notes":                    opts.Notes,
	}
	if valuation != nil {
		metadata["valuation"] = valuation
	}
	metadataBytes, _ := json.Marshal(metadata)

	unitType := &domain.UnitType{
		ExternalID:    created.ExternalID,
		ProjectID:     project.ProjectID,
		Name:          name,
		Symbol:        symbol,
		Decimals:      defaultDecimals,
		InitialSupply: amount,
		CurrentSupply: amount,
		MaxSupply:     &maxSupply,
		CreatorID:     callerID,
		Metadata:      datatypes.JSON(metadataBytes),
	}
	mintTx := &domain.Transaction{
		ExternalTxID:       &created.ExternalTxID,
		ProjectID:          project.ProjectID,
		Kind:               domain.TxKindMint,
		ReceiverID:         callerID,
		Amount:             amount,
		Status:             domain.TxStatusConfirmed,
		ConsensusTimestamp: &now,
		Memo:               fmt.Sprintf("Initial minting of %s for project %s", name, project.Name),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(unitType).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.InvalidState("Project already has a unit type")
			}
			return err
		}
		mintTx.UnitTypeID = unitType.UnitTypeID
		if err := tx.Create(mintTx).Error; err != nil {
			return err
		}
		project.Status = domain.ProjectStatusActive
		project.UnitTypeID = &unitType.UnitTypeID
		if err := project.AppendVerification(domain.VerificationEntry{
			Date:     now,
			Status:   "TOKENIZED",
			Notes:    tokenizeNote(opts),
			Verifier: callerID.String(),
		}); err != nil {
			return err
		}
		return tx.Save(&project).Error
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &project, map[string]interface{}{
		"type":         "UNIT_TYPE_CREATED",
		"project_id":   project.ProjectID.String(),
		"unit_type_id": unitType.UnitTypeID.String(),
		"external_id":  unitType.ExternalID,
		"amount":       amount,
		"timestamp":    now.UTC().Format(time.RFC3339),
	})

	log.Info().
		Str("project_id", project.ProjectID.String()).
		Str("unit_type_id", unitType.UnitTypeID.String()).
		Float64("amount", amount).
		Msg("tokenized project")

	return &TokenizeResult{
		Project:     &project,
		UnitType:    unitType,
		Transaction: mintTx,
		Valuation:   valuation,
	}, nil
}

// MintAdditional mints more units of an existing unit type on behalf of the
// project owner. Supply headroom is reserved with a conditional update
// before the external call; a gateway failure restores it.
func (s *Service) MintAdditional(ctx context.Context, unitTypeID ids.ID, amount float64, ownerID ids.ID) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.InvalidInput("mint amount must be positive")
	}

	var unitType domain.UnitType
	if err := s.DB.WithContext(ctx).Where("unit_type_id = ?", unitTypeID).First(&unitType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Unit type %s not found", unitTypeID)
		}
		return nil, err
	}
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", unitType.ProjectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Project %s not found", unitType.ProjectID)
		}
		return nil, err
	}
	if project.OwnerID != ownerID {
		return nil, apperror.Unauthorized("Not authorized to mint units for this project")
	}
	if project.Status != domain.ProjectStatusActive {
		return nil, apperror.InvalidState("Project must be active to mint units, current status: %s", project.Status)
	}
	if unitType.MaxSupply != nil && unitType.CurrentSupply+amount > *unitType.MaxSupply {
		return nil, apperror.InsufficientBalance("Minting %.2f units would exceed the maximum supply of %.2f", amount, *unitType.MaxSupply)
	}

	now := time.Now()
	mintTx := &domain.Transaction{
		UnitTypeID: unitType.UnitTypeID,
		ProjectID:  project.ProjectID,
		Kind:       domain.TxKindMint,
		ReceiverID: ownerID,
		Amount:     amount,
		Status:     domain.TxStatusPending,
		Memo:       fmt.Sprintf("Minted %.2f additional units for project %s", amount, project.Name),
	}

	// Reserve supply headroom; the conditional update is the per-unit-type
	// mint authorization, so concurrent mints cannot blow past max supply.
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.UnitType{}).
			Where("unit_type_id = ? AND (max_supply IS NULL OR current_supply + ? <= max_supply)", unitTypeID, amount).
			Updates(map[string]interface{}{
				"current_supply": gorm.Expr("current_supply + ?", amount),
				"last_mint_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.InsufficientBalance("Minting %.2f units would exceed the maximum supply", amount)
		}
		return tx.Create(mintTx).Error
	})
	if err != nil {
		return nil, err
	}

	externalTxID, gwErr := s.Gateway.Mint(ctx, gateway.MintRequest{
		ExternalID:     unitType.ExternalID,
		Amount:         amount,
		IdempotencyKey: mintTx.TxID.String(),
	})
	if gwErr != nil {
		// Roll the reservation back and fail the pending record.
		rbErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&domain.UnitType{}).
				Where("unit_type_id = ?", unitTypeID).
				Update("current_supply", gorm.Expr("current_supply - ?", amount)).Error; err != nil {
				return err
			}
			return tx.Model(&domain.Transaction{}).
				Where("tx_id = ?", mintTx.TxID).
				Update("status", domain.TxStatusFailed).Error
		})
		if rbErr != nil {
			log.Error().Err(rbErr).Str("tx_id", mintTx.TxID.String()).Msg("mint rollback failed")
		}
		return nil, apperror.ExternalLedger(gwErr, "external mint failed for unit type %s", unitTypeID)
	}

	if err := s.DB.WithContext(ctx).Model(&domain.Transaction{}).
		Where("tx_id = ?", mintTx.TxID).
		Updates(map[string]interface{}{
			"external_tx_id":      externalTxID,
			"status":              domain.TxStatusConfirmed,
			"consensus_timestamp": now,
		}).Error; err != nil {
		return nil, err
	}
	mintTx.ExternalTxID = &externalTxID
	mintTx.Status = domain.TxStatusConfirmed
	mintTx.ConsensusTimestamp = &now

	s.recordAudit(ctx, &project, map[string]interface{}{
		"type":         "MINT",
		"unit_type_id": unitType.UnitTypeID.String(),
		"amount":       amount,
		"timestamp":    now.UTC().Format(time.RFC3339),
	})

	log.Info().
		Str("unit_type_id", unitTypeID.String()).
		Float64("amount", amount).
		Msg("minted additional units")

	return mintTx, nil
}

// ProcessVerifiedProjects tokenizes every verified, untokenized project on
// behalf of the configured service principal. Per-project failures are
// logged and skipped; the batch keeps going.
func (s *Service) ProcessVerifiedProjects(ctx context.Context, principal ids.ID) (int, error) {
	if principal.IsNil() {
		return 0, apperror.InvalidInput("service principal is required for batch tokenization")
	}

	var projects []domain.Project
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND unit_type_id IS NULL", domain.ProjectStatusVerified).
		Find(&projects).Error; err != nil {
		return 0, err
	}

	processed := 0
	for i := range projects {
		if _, err := s.TokenizeProject(ctx, projects[i].ProjectID, principal, TokenizeOptions{}); err != nil {
			log.Error().Err(err).Str("project_id", projects[i].ProjectID.String()).Msg("batch tokenization failed for project")
			continue
		}
		processed++
	}
	return processed, nil
}

// ReadinessReport describes whether a project can be tokenized and why not.
type ReadinessReport struct {
	IsReady bool            `json:"is_ready"`
	Reason  string          `json:"reason,omitempty"`
	Checks  map[string]bool `json:"checks,omitempty"`
}

// Readiness reports tokenization readiness without side effects.
func (s *Service) Readiness(ctx context.Context, projectID ids.ID) (*ReadinessReport, error) {
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ReadinessReport{IsReady: false, Reason: "Project not found"}, nil
		}
		return nil, err
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.UnitType{}).
		Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		return nil, err
	}

	checks := map[string]bool{
		"is_verified":        project.Status == domain.ProjectStatusVerified,
		"has_carbon_credits": project.EstimatedCarbonCapture > 0,
		"no_existing_unit":   count == 0,
	}
	ready := true
	for _, ok := range checks {
		if !ok {
			ready = false
			break
		}
	}
	return &ReadinessReport{IsReady: ready, Checks: checks}, nil
}

// resolveAmount picks the unit amount: explicit caller input wins; otherwise
// an oracle recommendation above the confidence threshold; otherwise the
// project's estimated capture. The recommendation is returned either way so
// it can be stored as a valuation snapshot.
func (s *Service) resolveAmount(ctx context.Context, project *domain.Project, explicit *float64) (float64, *oracle.Recommendation) {
	var rec *oracle.Recommendation
	if s.Oracle != nil {
		r, err := s.Oracle.Recommend(ctx, oracle.ProjectAttributes{
			ProjectType:            project.ProjectType,
			Area:                   project.Area,
			Location:               project.Location,
			EstimatedCarbonCapture: project.EstimatedCarbonCapture,
			ActualCarbonCapture:    project.ActualCarbonCapture,
			StartDate:              project.StartDate,
			EndDate:                project.EndDate,
		})
		if err != nil {
			log.Warn().Err(err).Str("project_id", project.ProjectID.String()).Msg("valuation oracle unavailable")
		} else {
			rec = r
		}
	}

	if explicit != nil && *explicit > 0 {
		return *explicit, rec
	}
	if rec != nil && rec.Confidence >= s.ConfidenceThreshold && rec.Amount > 0 {
		return rec.Amount, rec
	}
	return project.EstimatedCarbonCapture, rec
}

// recordAudit appends a best-effort audit note to the project's audit topic.
// Failures are logged, never surfaced: the local record is already durable.
func (s *Service) recordAudit(ctx context.Context, project *domain.Project, message map[string]interface{}) {
	if project.AuditTopicID == "" {
		return
	}
	if _, err := s.Gateway.RecordAuditEvent(ctx, project.AuditTopicID, message); err != nil {
		log.Warn().Err(err).Str("project_id", project.ProjectID.String()).Msg("audit event not recorded")
	}
}

func unitSymbol(projectType string) string {
	t := strings.ToUpper(strings.ReplaceAll(projectType, " ", ""))
	if len(t) > 3 {
		t = t[:3]
	}
	if t == "" {
		t = "GEN"
	}
	return "CC_" + t
}

func verificationMethod(m string) string {
	if m == "" {
		return "auto"
	}
	return m
}

func tokenizeNote(opts TokenizeOptions) string {
	if opts.Notes != "" {
		return opts.Notes
	}
	note := "Project tokenized"
	if opts.VerificationMethod != "" {
		note += fmt.Sprintf(" (Method: %s)", opts.VerificationMethod)
	}
	return note
}

// ListUnitTypes returns unit types, optionally filtered by project.
func (s *Service) ListUnitTypes(ctx context.Context, projectID *ids.ID, page, limit int) ([]domain.UnitType, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	q := s.DB.WithContext(ctx)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	var unitTypes []domain.UnitType
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&unitTypes).Error
	return unitTypes, err
}

// GetUnitType fetches one unit type by id.
func (s *Service) GetUnitType(ctx context.Context, unitTypeID ids.ID) (*domain.UnitType, error) {
	var unitType domain.UnitType
	if err := s.DB.WithContext(ctx).Where("unit_type_id = ?", unitTypeID).First(&unitType).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Unit type %s not found", unitTypeID)
		}
		return nil, err
	}
	return &unitType, nil
}
