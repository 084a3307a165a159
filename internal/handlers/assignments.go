package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"progress-tracker-backend/internal/middleware"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/services"
)

type AssignmentsHandler struct {
	service *services.AssignmentService
}

func NewAssignmentsHandler(service *services.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{service: service}
}

func (h *AssignmentsHandler) CreateMember(c *gin.Context) {
	var req models.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	member, err := h.service.CreateMember(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toMemberResponse(member))
}

func (h *AssignmentsHandler) ListMembers(c *gin.Context) {
	members, err := h.service.ListMembers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.MemberListResponse{Members: make([]models.MemberResponse, len(members))}
	for i := range members {
		resp.Members[i] = toMemberResponse(&members[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AssignmentsHandler) CreateAssignment(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req models.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	assignment, err := h.service.CreateAssignment(c.Request.Context(), projectID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toAssignmentResponse(assignment))
}

func (h *AssignmentsHandler) ListAssignments(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	assignments, err := h.service.ListAssignments(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.AssignmentListResponse{Assignments: make([]models.AssignmentResponse, len(assignments))}
	for i := range assignments {
		resp.Assignments[i] = toAssignmentResponse(&assignments[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AssignmentsHandler) UpdateStatus(c *gin.Context) {
	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid assignment id"})
		return
	}

	var req models.UpdateAssignmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	actor := services.Actor{
		UserID: middleware.UserIDFromContext(c),
		Role:   middleware.RoleFromContext(c),
	}
	assignment, err := h.service.UpdateStatus(c.Request.Context(), assignmentID, actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAssignmentResponse(assignment))
}
