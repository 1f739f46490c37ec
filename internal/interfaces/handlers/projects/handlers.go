package projects

import (
	projsvc "kabonia-backend/internal/application/projects"
	"kabonia-backend/internal/pkg/ids"
	"kabonia-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *projsvc.Service
}

// GET /api/v1/projects/:project_id
func (h *Handlers) GetByID(c *fiber.Ctx) error {
	projectID, err := ids.Parse(c.Params("project_id"))
	if err != nil {
		return response.Error(c, "Invalid project_id format", 400, nil)
	}
	project, err := h.Service.GetByID(c.Context(), projectID)
	if err != nil {
		return err
	}
	return response.Success(c, "Project fetched successfully", project, nil)
}

// GET /api/v1/projects
func (h *Handlers) List(c *fiber.Ctx) error {
	projects, err := h.Service.List(c.Context(), c.Query("status"), c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return response.Success(c, "Projects fetched successfully", projects, nil)
}
