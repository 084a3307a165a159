package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"progress-tracker-backend/internal/models"
)

const maxDeliverableSize = 100 << 20

// UploadDeliverable accepts a multipart "file" field and publishes it as
// the project's delivery URL.
func (h *ProjectsHandler) UploadDeliverable(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "file is required",
			Message: err.Error(),
		})
		return
	}
	if fileHeader.Size > maxDeliverableSize {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to open file",
			Message: err.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to read file",
			Message: err.Error(),
		})
		return
	}

	deliverable, err := h.service.UploadDeliverable(c.Request.Context(), projectID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.DeliverableResponse{
		ProjectID:   projectID.String(),
		Filename:    fileHeader.Filename,
		StoragePath: deliverable.StoragePath,
		DeliveryURL: deliverable.URL,
	})
}
