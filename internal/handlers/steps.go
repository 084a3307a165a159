package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/services"
	"progress-tracker-backend/internal/workflow"
)

type StepsHandler struct {
	service *services.ProjectService
}

func NewStepsHandler(service *services.ProjectService) *StepsHandler {
	return &StepsHandler{service: service}
}

func (h *StepsHandler) AddStep(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	var req models.AddStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.service.AddStep(c.Request.Context(), projectID,
		services.StepInputFromRequest(req.StepRequest), req.InsertAt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toStepMutationResponse(res))
}

func (h *StepsHandler) UpdateStep(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	order, ok := orderParam(c)
	if !ok {
		return
	}

	var req models.StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	res, err := h.service.UpdateStep(c.Request.Context(), projectID, order, services.StepInputFromRequest(req))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStepMutationResponse(res))
}

func (h *StepsHandler) SetStepStatus(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	order, ok := orderParam(c)
	if !ok {
		return
	}

	var req models.SetStepStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	status, err := workflow.ParseStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.service.SetStepStatus(c.Request.Context(), projectID, order, status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStepMutationResponse(res))
}

func (h *StepsHandler) MoveStep(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	order, ok := orderParam(c)
	if !ok {
		return
	}

	var req models.MoveStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	dir, err := workflow.ParseDirection(req.Direction)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.service.ReorderStep(c.Request.Context(), projectID, order, dir)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStepMutationResponse(res))
}

func (h *StepsHandler) DeleteStep(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	order, ok := orderParam(c)
	if !ok {
		return
	}

	res, err := h.service.DeleteStep(c.Request.Context(), projectID, order)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toStepMutationResponse(res))
}
