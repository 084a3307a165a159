package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/handlers"
	"progress-tracker-backend/internal/middleware"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/notify"
	"progress-tracker-backend/internal/services"
	"progress-tracker-backend/internal/services/memstore"
	"progress-tracker-backend/internal/workflow"
)

var handlerNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

const testUserID = "7d3c1f5e-9a0b-4c1d-8e2f-3a4b5c6d7e8f"

type testEnv struct {
	router      *gin.Engine
	store       *memstore.Store
	events      *memstore.Publisher
	notifier    *memstore.Notifier
	projects    *services.ProjectService
	assignments *services.AssignmentService
	role        workflow.Role
	userID      string
}

// asUser stands in for AuthMiddleware.
func (e *testEnv) asUser(c *gin.Context) {
	c.Set(middleware.UserIDKey, e.userID)
	c.Set(middleware.RoleKey, e.role)
	c.Next()
}

// sent waits for queued emails and returns what was delivered.
func (e *testEnv) sent() []notify.Message {
	e.projects.FlushNotifications()
	e.assignments.FlushNotifications()
	return e.notifier.Sent()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:    memstore.NewStore(),
		events:   &memstore.Publisher{},
		notifier: &memstore.Notifier{},
		role:     workflow.RoleAdmin,
		userID:   testUserID,
	}
	env.projects = services.NewProjectService(env.store, env.events, env.notifier, &memstore.Files{}, zap.NewNop()).
		WithClock(func() time.Time { return handlerNow })
	env.assignments = services.NewAssignmentService(env.store, env.notifier, zap.NewNop())

	projectsHandler := handlers.NewProjectsHandler(env.projects)
	stepsHandler := handlers.NewStepsHandler(env.projects)
	assignmentsHandler := handlers.NewAssignmentsHandler(env.assignments)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(env.asUser)

	staff := api.Group("")
	staff.Use(middleware.RequireRole(workflow.RoleMaster, workflow.RoleAdmin, workflow.RoleDirector))
	staff.POST("/projects", projectsHandler.CreateProject)
	staff.GET("/projects", projectsHandler.ListProjects)
	staff.GET("/projects/:project_id", projectsHandler.GetProject)
	staff.PATCH("/projects/:project_id", projectsHandler.UpdateProject)
	staff.DELETE("/projects/:project_id", projectsHandler.DeleteProject)
	staff.GET("/projects/:project_id/milestones", projectsHandler.GetMilestones)
	staff.POST("/projects/:project_id/deliverables", projectsHandler.UploadDeliverable)
	staff.POST("/projects/:project_id/steps", stepsHandler.AddStep)
	staff.PATCH("/projects/:project_id/steps/:order", stepsHandler.UpdateStep)
	staff.PUT("/projects/:project_id/steps/:order/status", stepsHandler.SetStepStatus)
	staff.POST("/projects/:project_id/steps/:order/move", stepsHandler.MoveStep)
	staff.DELETE("/projects/:project_id/steps/:order", stepsHandler.DeleteStep)
	staff.POST("/members", assignmentsHandler.CreateMember)
	staff.GET("/members", assignmentsHandler.ListMembers)
	staff.POST("/projects/:project_id/assignments", assignmentsHandler.CreateAssignment)
	staff.GET("/projects/:project_id/assignments", assignmentsHandler.ListAssignments)

	api.PUT("/assignments/:assignment_id/status", assignmentsHandler.UpdateStatus)

	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (e *testEnv) createProject(t *testing.T) uuid.UUID {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/projects", models.CreateProjectRequest{
		Name:   "ブランドサイト",
		Client: "Initech",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.ProjectResponse
	decode(t, w, &resp)
	return uuid.MustParse(resp.ID)
}

// portalReader serves the portal from the in-memory store.
type portalReader struct {
	store *memstore.Store
}

func (p portalReader) ListClientProjects(clientID string) ([]models.Project, error) {
	return p.store.ListProjects(context.Background(), clientID)
}

func (p portalReader) GetProject(projectID uuid.UUID) (*models.Project, error) {
	return p.store.GetProject(context.Background(), projectID)
}

func (p portalReader) ListMilestoneRecords(projectID uuid.UUID) ([]models.MilestoneRecord, error) {
	return p.store.ListMilestoneRecords(context.Background(), projectID)
}
