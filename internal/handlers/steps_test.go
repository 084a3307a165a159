package handlers_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/workflow"
)

func stepPath(id uuid.UUID, suffix string) string {
	return "/api/v1/projects/" + id.String() + "/steps" + suffix
}

func statuses(steps []workflow.Step) []workflow.Status {
	out := make([]workflow.Status, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}

func TestSetStepStatus(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	w := env.do(t, http.MethodPut, stepPath(id, "/3/status"), models.SetStepStatusRequest{Status: "current"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.StepMutationResponse
	decode(t, w, &resp)
	assert.True(t, resp.Changed)
	assert.Equal(t, 29, resp.Progress)
	assert.Equal(t, []workflow.Status{
		workflow.StatusCompleted, workflow.StatusCompleted, workflow.StatusCurrent,
		workflow.StatusPending, workflow.StatusPending, workflow.StatusPending, workflow.StatusPending,
	}, statuses(resp.Steps))
	require.NotNil(t, resp.CurrentStep)
	assert.Equal(t, 3, resp.CurrentStep.Order)
	require.Len(t, resp.NewMilestones, 2)
	assert.Equal(t, "first_step", resp.NewMilestones[0].ID)

	// same request again changes nothing
	w = env.do(t, http.MethodPut, stepPath(id, "/3/status"), models.SetStepStatusRequest{Status: "current"})
	require.Equal(t, http.StatusOK, w.Code)
	var again models.StepMutationResponse
	decode(t, w, &again)
	assert.False(t, again.Changed)
	assert.NotNil(t, again.NewMilestones)
	assert.Empty(t, again.NewMilestones)
}

func TestSetStepStatus_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	cases := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{"unknown status", stepPath(id, "/1/status"), models.SetStepStatusRequest{Status: "done"}, http.StatusBadRequest},
		{"missing status", stepPath(id, "/1/status"), map[string]string{}, http.StatusBadRequest},
		{"order zero", stepPath(id, "/0/status"), models.SetStepStatusRequest{Status: "current"}, http.StatusBadRequest},
		{"order not a number", stepPath(id, "/x/status"), models.SetStepStatusRequest{Status: "current"}, http.StatusBadRequest},
		{"no such step", stepPath(id, "/42/status"), models.SetStepStatusRequest{Status: "current"}, http.StatusNotFound},
		{"no such project", stepPath(uuid.New(), "/1/status"), models.SetStepStatusRequest{Status: "current"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestAddStep(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	at := 0
	w := env.do(t, http.MethodPost, stepPath(id, ""), models.AddStepRequest{
		StepRequest: models.StepRequest{Name: "キックオフ", URL: "https://meet.test/kickoff"},
		InsertAt:    &at,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.StepMutationResponse
	decode(t, w, &resp)
	require.Len(t, resp.Steps, 8)
	assert.Equal(t, "キックオフ", resp.Steps[0].Name)
	assert.Equal(t, 1, resp.Steps[0].Order)
	assert.Equal(t, 2, resp.Steps[1].Order)
	require.NotNil(t, resp.Step)
	assert.Equal(t, "キックオフ", resp.Step.Name)

	w = env.do(t, http.MethodPost, stepPath(id, ""), models.AddStepRequest{
		StepRequest: models.StepRequest{Name: "  "},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStep(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	w := env.do(t, http.MethodPatch, stepPath(id, "/2"), models.StepRequest{
		Name:        "コンセプト設計",
		Description: "ムードボード作成",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.StepMutationResponse
	decode(t, w, &resp)
	assert.Equal(t, "コンセプト設計", resp.Steps[1].Name)
	assert.Equal(t, "ムードボード作成", resp.Steps[1].Description)
	assert.Equal(t, workflow.StatusPending, resp.Steps[1].Status)
}

func TestMoveStep(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	w := env.do(t, http.MethodPost, stepPath(id, "/3/move"), models.MoveStepRequest{Direction: "up"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.StepMutationResponse
	decode(t, w, &resp)
	assert.True(t, resp.Changed)
	assert.Equal(t, "デザイン制作", resp.Steps[1].Name)
	assert.Equal(t, "企画・コンセプト設計", resp.Steps[2].Name)

	w = env.do(t, http.MethodPost, stepPath(id, "/1/move"), models.MoveStepRequest{Direction: "up"})
	require.Equal(t, http.StatusOK, w.Code)
	var boundary models.StepMutationResponse
	decode(t, w, &boundary)
	assert.False(t, boundary.Changed)

	w = env.do(t, http.MethodPost, stepPath(id, "/1/move"), models.MoveStepRequest{Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteStep(t *testing.T) {
	env := newTestEnv(t)
	id := env.createProject(t)

	w := env.do(t, http.MethodPut, stepPath(id, "/2/status"), models.SetStepStatusRequest{Status: "current"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, stepPath(id, "/2"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.StepMutationResponse
	decode(t, w, &resp)
	require.Len(t, resp.Steps, 6)
	for i, s := range resp.Steps {
		assert.Equal(t, i+1, s.Order)
	}
	require.NotNil(t, resp.CurrentStep)
	assert.Equal(t, 2, resp.CurrentStep.Order)
	assert.Equal(t, workflow.StatusCurrent, resp.Steps[1].Status)
}

func TestDeleteStep_LastStepRejected(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/projects", models.CreateProjectRequest{
		Name: "単発", Client: "Acme", Steps: []models.StepRequest{{Name: "納品"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var project models.ProjectResponse
	decode(t, w, &project)

	w = env.do(t, http.MethodDelete, "/api/v1/projects/"+project.ID+"/steps/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp models.ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "invalid_operation", resp.Error)
}
