package domain

import (
	"encoding/json"
	"time"

	"kabonia-backend/internal/pkg/ids"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project status state machine. Tokenization requires verified or active;
// tokenizing a verified project moves it to active.
const (
	ProjectStatusDraft               = "draft"
	ProjectStatusPendingVerification = "pending_verification"
	ProjectStatusVerified            = "verified"
	ProjectStatusActive              = "active"
	ProjectStatusCompleted           = "completed"
)

// Project is the verified-offsets project a unit type is minted against.
// The verification workflow itself lives outside this service; we own only
// the status gate and the tokenization side effects on it.
type Project struct {
	ProjectID              ids.ID         `gorm:"column:project_id;type:uuid;primaryKey" json:"project_id"`
	Name                   string         `gorm:"column:name;not null" json:"name"`
	OwnerID                ids.ID         `gorm:"column:owner_id;type:uuid;not null" json:"owner_id"`
	Status                 string         `gorm:"column:status;type:varchar(32);not null;default:'draft'" json:"status"`
	ProjectType            string         `gorm:"column:project_type;not null" json:"project_type"`
	Location               string         `gorm:"column:location" json:"location"`
	Area                   float64        `gorm:"column:area;type:decimal(18,2)" json:"area"`
	EstimatedCarbonCapture float64        `gorm:"column:estimated_carbon_capture;type:decimal(18,2)" json:"estimated_carbon_capture"`
	ActualCarbonCapture    *float64       `gorm:"column:actual_carbon_capture;type:decimal(18,2)" json:"actual_carbon_capture"`
	StartDate              *time.Time     `gorm:"column:start_date" json:"start_date"`
	EndDate                *time.Time     `gorm:"column:end_date" json:"end_date"`
	AuditTopicID           string         `gorm:"column:audit_topic_id" json:"audit_topic_id"`
	UnitTypeID             *ids.ID        `gorm:"column:unit_type_id;type:uuid" json:"unit_type_id"`
	VerificationHistory    datatypes.JSON `gorm:"column:verification_history;type:json" json:"verification_history"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ProjectID.IsNil() {
		p.ProjectID = ids.New()
	}
	return nil
}

// Tokenizable reports whether the tokenization pipeline may run for this
// project's current status.
func (p *Project) Tokenizable() bool {
	return p.Status == ProjectStatusVerified || p.Status == ProjectStatusActive
}

// VerificationEntry is one element of the verification_history JSON array.
type VerificationEntry struct {
	Date     time.Time `json:"date"`
	Status   string    `json:"status"`
	Notes    string    `json:"notes,omitempty"`
	Verifier string    `json:"verifier"`
}

// AppendVerification appends an entry to the verification history, tolerating
// an empty or missing history value.
func (p *Project) AppendVerification(entry VerificationEntry) error {
	var history []VerificationEntry
	if len(p.VerificationHistory) > 0 {
		if err := json.Unmarshal(p.VerificationHistory, &history); err != nil {
			return err
		}
	}
	history = append(history, entry)
	b, err := json.Marshal(history)
	if err != nil {
		return err
	}
	p.VerificationHistory = datatypes.JSON(b)
	return nil
}
