package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/supabase"
)

// PortalReader is the read-only data source of the client portal.
type PortalReader interface {
	ListClientProjects(clientID string) ([]models.Project, error)
	GetProject(projectID uuid.UUID) (*models.Project, error)
	ListMilestoneRecords(projectID uuid.UUID) ([]models.MilestoneRecord, error)
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, projectID uuid.UUID) (<-chan supabase.Event, error)
}

type PortalHandler struct {
	reader    PortalReader
	events    EventSubscriber
	keepAlive time.Duration
	logger    *zap.Logger
}

func NewPortalHandler(reader PortalReader, events EventSubscriber, logger *zap.Logger) *PortalHandler {
	return &PortalHandler{
		reader:    reader,
		events:    events,
		keepAlive: 25 * time.Second,
		logger:    logger,
	}
}

// WithKeepAlive sets the interval of SSE ping comments.
func (h *PortalHandler) WithKeepAlive(d time.Duration) *PortalHandler {
	h.keepAlive = d
	return h
}

func (h *PortalHandler) ListClientProjects(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("client_id"))
	if clientID == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid client id"})
		return
	}

	projects, err := h.reader.ListClientProjects(clientID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.PortalProjectListResponse{
		ClientID: clientID,
		Projects: make([]models.PortalProjectResponse, 0, len(projects)),
	}
	for i := range projects {
		records, err := h.reader.ListMilestoneRecords(projects[i].ID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp.Projects = append(resp.Projects, toPortalProject(&projects[i], records))
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PortalHandler) GetProject(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	project, err := h.reader.GetProject(projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := h.reader.ListMilestoneRecords(projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPortalProject(project, records))
}

// StreamProjectEvents relays project events as server-sent events until
// the client disconnects.
func (h *PortalHandler) StreamProjectEvents(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	if _, err := h.reader.GetProject(projectID); err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.events.Subscribe(ctx, projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.logger.Debug("portal stream opened", zap.String("project_id", projectID.String()))

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})

	h.logger.Debug("portal stream closed", zap.String("project_id", projectID.String()))
}
