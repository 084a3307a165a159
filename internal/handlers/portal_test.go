package handlers_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/handlers"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/supabase"
)

func newPortalRouter(env *testEnv, events handlers.EventSubscriber) *gin.Engine {
	portal := handlers.NewPortalHandler(portalReader{store: env.store}, events, zap.NewNop()).
		WithKeepAlive(50 * time.Millisecond)

	router := gin.New()
	group := router.Group("/portal")
	group.GET("/clients/:client_id/projects", portal.ListClientProjects)
	group.GET("/projects/:project_id", portal.GetProject)
	group.GET("/projects/:project_id/events", portal.StreamProjectEvents)
	return router
}

func TestPortal_GetProject(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	folder := "https://drive.test/internal"
	w := env.do(t, http.MethodPatch, "/api/v1/projects/"+id.String(), models.UpdateProjectRequest{FolderURL: &folder})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPut, "/api/v1/projects/"+id.String()+"/steps/2/status", models.SetStepStatusRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, w.Code)

	router := newPortalRouter(env, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/portal/projects/"+id.String(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.PortalProjectResponse
	decode(t, w, &resp)
	assert.Equal(t, 29, resp.Progress)
	require.NotNil(t, resp.CurrentStep)
	assert.Equal(t, 3, resp.CurrentStep.Order)
	ids := make([]string, len(resp.Milestones))
	for i, m := range resp.Milestones {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"project_start", "first_step", "quarter_done"}, ids)
	assert.NotContains(t, w.Body.String(), folder)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/portal/projects/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortal_ListClientProjects(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)
	w := env.do(t, http.MethodGet, "/api/v1/projects/"+id.String(), nil)
	var project models.ProjectResponse
	decode(t, w, &project)

	router := newPortalRouter(env, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/portal/clients/"+project.ClientID+"/projects", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PortalProjectListResponse
	decode(t, w, &resp)
	assert.Equal(t, project.ClientID, resp.ClientID)
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, id.String(), resp.Projects[0].ID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/portal/clients/CL9999/projects", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var empty models.PortalProjectListResponse
	decode(t, w, &empty)
	assert.Empty(t, empty.Projects)
}

func TestPortal_StreamProjectEvents(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	realtime := supabase.NewRealtimeClient(rdb)

	server := httptest.NewServer(newPortalRouter(env, realtime))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/portal/projects/"+id.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// the subscription may not be registered yet, so keep publishing
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = realtime.PublishProjectEvent(context.Background(), id, supabase.EventStepUpdated,
					map[string]interface{}{"progress": 14})
			}
		}
	}()

	var sawEvent, sawData bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event:"+supabase.EventStepUpdated {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data:") {
			assert.Contains(t, line, `"progress":14`)
			sawData = true
			break
		}
	}
	assert.True(t, sawEvent)
	assert.True(t, sawData)
}

func TestPortal_StreamUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	router := newPortalRouter(env, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/portal/projects/"+uuid.NewString()+"/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
