package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/notify"
	"progress-tracker-backend/internal/services"
	"progress-tracker-backend/internal/workflow"
)

var workerUserID = uuid.MustParse("0b6f2a44-5c1e-4d7a-9f3b-8e2d1c4a7b90")

type assignmentFixture struct {
	*projectFixture
	assignments *services.AssignmentService
	worker      *models.Member
	director    *models.Member
}

func newAssignmentFixture(t *testing.T) *assignmentFixture {
	t.Helper()
	pf := newProjectFixture(t)
	f := &assignmentFixture{
		projectFixture: pf,
		assignments:    services.NewAssignmentService(pf.store, pf.notifier, zap.NewNop()),
	}

	ctx := context.Background()
	var err error
	f.worker, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{
		Name: "佐藤", Email: "Sato@Studio.test", Role: "worker", UserID: workerUserID.String(),
	})
	require.NoError(t, err)
	f.director, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{
		Name: "鈴木", Email: "suzuki@studio.test", Role: "director",
	})
	require.NoError(t, err)
	return f
}

func (f *assignmentFixture) assign(t *testing.T, order int) *models.Assignment {
	t.Helper()
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	a, err := f.assignments.CreateAssignment(context.Background(), f.projectID, models.CreateAssignmentRequest{
		StepOrder:  order,
		WorkerID:   f.worker.ID.String(),
		DirectorID: f.director.ID.String(),
		DueDate:    &due,
		Notes:      "トップページ優先",
	})
	require.NoError(t, err)
	return a
}

// move acts as the fixture worker's account with the given role.
func (f *assignmentFixture) move(t *testing.T, id uuid.UUID, role workflow.Role, status, comment string) (*models.Assignment, error) {
	t.Helper()
	return f.moveAs(t, services.Actor{UserID: workerUserID.String(), Role: role}, id, status, comment)
}

func (f *assignmentFixture) moveAs(t *testing.T, actor services.Actor, id uuid.UUID, status, comment string) (*models.Assignment, error) {
	t.Helper()
	return f.assignments.UpdateStatus(context.Background(), id, actor, models.UpdateAssignmentStatusRequest{
		Status: status, Comment: comment,
	})
}

// sent waits for both services' queued emails.
func (f *assignmentFixture) sent() []notify.Message {
	f.assignments.FlushNotifications()
	return f.projectFixture.sent()
}

func messageTypes(msgs []notify.Message) []notify.Type {
	out := make([]notify.Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func TestCreateMember(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	assert.Equal(t, "sato@studio.test", f.worker.Email)
	assert.Equal(t, workflow.RoleWorker, f.worker.Role)
	assert.Equal(t, uuid.NullUUID{UUID: workerUserID, Valid: true}, f.worker.UserID)
	assert.False(t, f.director.UserID.Valid)

	_, err := f.assignments.CreateMember(ctx, models.CreateMemberRequest{Name: "x", Email: "nope", Role: "worker"})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{Name: "x", Email: "x@y.test", Role: "client"})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{Name: "dup", Email: "sato@studio.test", Role: "worker"})
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	_, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{
		Name: "dup", Email: "other@studio.test", Role: "worker", UserID: workerUserID.String(),
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	_, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{
		Name: "x", Email: "x@studio.test", Role: "worker", UserID: "nope",
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	members, err := f.assignments.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestCreateAssignment(t *testing.T) {
	f := newAssignmentFixture(t)

	a := f.assign(t, 3)
	assert.Equal(t, workflow.AssignmentPending, a.Status)
	assert.Equal(t, 3, a.StepOrder)
	assert.True(t, a.DirectorID.Valid)

	msgs := f.sent()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, notify.TaskAssigned, msg.Type)
	assert.Equal(t, "sato@studio.test", msg.To)
	assert.Equal(t, "デザイン制作", msg.Data["stepName"])
	assert.Equal(t, "2026-03-20", msg.Data["dueDate"])

	list, err := f.assignments.ListAssignments(context.Background(), f.projectID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateAssignment_Errors(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	f.assign(t, 1)

	_, err := f.assignments.CreateAssignment(ctx, f.projectID, models.CreateAssignmentRequest{
		StepOrder: 1, WorkerID: f.worker.ID.String(),
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	_, err = f.assignments.CreateAssignment(ctx, f.projectID, models.CreateAssignmentRequest{
		StepOrder: 42, WorkerID: f.worker.ID.String(),
	})
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	_, err = f.assignments.CreateAssignment(ctx, f.projectID, models.CreateAssignmentRequest{
		StepOrder: 2, WorkerID: "not-a-uuid",
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.assignments.CreateAssignment(ctx, f.projectID, models.CreateAssignmentRequest{
		StepOrder: 2, WorkerID: f.worker.ID.String(), DirectorID: f.worker.ID.String(),
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.assignments.CreateAssignment(ctx, uuid.New(), models.CreateAssignmentRequest{
		StepOrder: 2, WorkerID: f.worker.ID.String(),
	})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestAssignmentLifecycle_ApproveAfterRejection(t *testing.T) {
	f := newAssignmentFixture(t)
	a := f.assign(t, 2)
	assigned := len(f.sent())

	_, err := f.move(t, a.ID, workflow.RoleWorker, "in_progress", "")
	require.NoError(t, err)
	_, err = f.move(t, a.ID, workflow.RoleWorker, "submitted", "")
	require.NoError(t, err)

	rejected, err := f.move(t, a.ID, workflow.RoleDirector, "in_progress", "ロゴを大きく")
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentInProgress, rejected.Status)
	assert.Equal(t, "ロゴを大きく", rejected.ReviewComment.String)

	_, err = f.move(t, a.ID, workflow.RoleWorker, "submitted", "")
	require.NoError(t, err)
	approved, err := f.move(t, a.ID, workflow.RoleAdmin, "approved", "")
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentApproved, approved.Status)

	msgs := f.sent()[assigned:]
	assert.Equal(t, []notify.Type{
		notify.SubmissionReceived,
		notify.SubmissionRejected,
		notify.SubmissionReceived,
		notify.SubmissionApproved,
	}, messageTypes(msgs))
	assert.Equal(t, "ロゴを大きく", msgs[1].Data["comment"])
	assert.Equal(t, "sato@studio.test", msgs[3].To)

	// the step track is untouched by approval
	steps, err := f.store.LoadSteps(context.Background(), f.projectID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, steps[1].Status)
}

func TestAssignmentLifecycle_Invalid(t *testing.T) {
	f := newAssignmentFixture(t)
	a := f.assign(t, 2)

	_, err := f.move(t, a.ID, workflow.RoleWorker, "approved", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	_, err = f.move(t, a.ID, workflow.RoleWorker, "finished", "")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.move(t, uuid.New(), workflow.RoleWorker, "in_progress", "")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestAssignmentLifecycle_WorkerCannotReview(t *testing.T) {
	f := newAssignmentFixture(t)
	a := f.assign(t, 2)

	_, err := f.move(t, a.ID, workflow.RoleWorker, "in_progress", "")
	require.NoError(t, err)
	_, err = f.move(t, a.ID, workflow.RoleWorker, "submitted", "")
	require.NoError(t, err)

	_, err = f.move(t, a.ID, workflow.RoleWorker, "approved", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	stored, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentSubmitted, stored.Status)
}

func TestAssignmentLifecycle_SubmissionNotifiesDirector(t *testing.T) {
	f := newAssignmentFixture(t)
	a := f.assign(t, 3)
	assigned := len(f.sent())

	_, err := f.move(t, a.ID, workflow.RoleWorker, "in_progress", "")
	require.NoError(t, err)
	_, err = f.move(t, a.ID, workflow.RoleWorker, "submitted", "初稿です")
	require.NoError(t, err)

	msgs := f.sent()[assigned:]
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, notify.SubmissionReceived, msg.Type)
	assert.Equal(t, "suzuki@studio.test", msg.To)
	assert.Equal(t, map[string]interface{}{
		"directorName": "鈴木",
		"workerName":   "佐藤",
		"projectName":  "コーポレートサイト",
		"stepName":     "デザイン制作",
		"stage":        "submission",
		"comment":      "初稿です",
	}, msg.Data)
}

func TestAssignmentLifecycle_SubmissionWithoutDirectorNotifiesManagers(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()

	_, err := f.assignments.CreateMember(ctx, models.CreateMemberRequest{Name: "高橋", Email: "takahashi@studio.test", Role: "master"})
	require.NoError(t, err)
	_, err = f.assignments.CreateMember(ctx, models.CreateMemberRequest{Name: "田中", Email: "tanaka@studio.test", Role: "admin"})
	require.NoError(t, err)

	a, err := f.assignments.CreateAssignment(ctx, f.projectID, models.CreateAssignmentRequest{
		StepOrder: 4, WorkerID: f.worker.ID.String(),
	})
	require.NoError(t, err)
	assigned := len(f.sent())

	_, err = f.move(t, a.ID, workflow.RoleWorker, "in_progress", "")
	require.NoError(t, err)
	_, err = f.move(t, a.ID, workflow.RoleWorker, "submitted", "")
	require.NoError(t, err)

	msgs := f.sent()[assigned:]
	var to []string
	for _, m := range msgs {
		assert.Equal(t, notify.SubmissionReceived, m.Type)
		to = append(to, m.To)
	}
	assert.ElementsMatch(t, []string{"takahashi@studio.test", "tanaka@studio.test"}, to)
}

func TestAssignmentLifecycle_WorkerMustOwnAssignment(t *testing.T) {
	f := newAssignmentFixture(t)
	ctx := context.Background()
	a := f.assign(t, 2)

	otherUser := uuid.New()
	_, err := f.assignments.CreateMember(ctx, models.CreateMemberRequest{
		Name: "山本", Email: "yamamoto@studio.test", Role: "worker", UserID: otherUser.String(),
	})
	require.NoError(t, err)

	_, err = f.moveAs(t, services.Actor{UserID: otherUser.String(), Role: workflow.RoleWorker}, a.ID, "in_progress", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	// an account with no member record is treated the same way
	_, err = f.moveAs(t, services.Actor{UserID: uuid.NewString(), Role: workflow.RoleWorker}, a.ID, "in_progress", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	_, err = f.moveAs(t, services.Actor{Role: workflow.RoleWorker}, a.ID, "in_progress", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidOperation)

	stored, err := f.store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.AssignmentPending, stored.Status)

	// reviewers may move any assignment
	_, err = f.moveAs(t, services.Actor{UserID: uuid.NewString(), Role: workflow.RoleDirector}, a.ID, "in_progress", "")
	require.NoError(t, err)
}
