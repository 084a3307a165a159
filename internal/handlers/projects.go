package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"progress-tracker-backend/internal/middleware"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/services"
)

type ProjectsHandler struct {
	service *services.ProjectService
}

func NewProjectsHandler(service *services.ProjectService) *ProjectsHandler {
	return &ProjectsHandler{service: service}
}

func (h *ProjectsHandler) CreateProject(c *gin.Context) {
	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	// Staff created through the dashboard carry a Supabase user id; service
	// tokens may not.
	var createdBy uuid.NullUUID
	if userID, ok := c.Get(middleware.UserIDKey); ok {
		if id, err := uuid.Parse(userID.(string)); err == nil {
			createdBy = uuid.NullUUID{UUID: id, Valid: true}
		}
	}

	project, err := h.service.CreateProject(c.Request.Context(), req, createdBy)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toProjectResponse(project))
}

// ListProjects returns every project, or one client's when client_id is
// given.
func (h *ProjectsHandler) ListProjects(c *gin.Context) {
	projects, err := h.service.ListProjects(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	summaries := make([]models.ProjectSummary, len(projects))
	for i, p := range projects {
		summaries[i] = toProjectSummary(p)
	}

	c.JSON(http.StatusOK, models.ProjectListResponse{Projects: summaries})
}

func (h *ProjectsHandler) GetProject(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	project, err := h.service.GetProject(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProjectResponse(project))
}

func (h *ProjectsHandler) UpdateProject(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	project, err := h.service.UpdateProject(c.Request.Context(), projectID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProjectResponse(project))
}

func (h *ProjectsHandler) DeleteProject(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteProject(c.Request.Context(), projectID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ProjectsHandler) GetMilestones(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	overview, err := h.service.Milestones(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMilestonesResponse(overview))
}
