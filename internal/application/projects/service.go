package projects

import (
	"context"
	"errors"

	"kabonia-backend/internal/domain"
	"kabonia-backend/internal/pkg/apperror"
	"kabonia-backend/internal/pkg/ids"

	"gorm.io/gorm"
)

// Service is the read surface over projects. Projects enter the system
// through the verification pipeline upstream of this API; nothing here
// mutates them except the tokenization pipeline.
type Service struct {
	DB *gorm.DB
}

func (s *Service) GetByID(ctx context.Context, projectID ids.ID) (*domain.Project, error) {
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Project %s not found", projectID)
		}
		return nil, err
	}
	return &project, nil
}

// List returns projects, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, status string, page, limit int) ([]domain.Project, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	q := s.DB.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var projects []domain.Project
	err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&projects).Error
	return projects, err
}
