package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/notify"
	"progress-tracker-backend/internal/workflow"
)

type AssignmentStore interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)

	CreateMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error)
	GetMemberByUserID(ctx context.Context, userID uuid.UUID) (*models.Member, error)
	ListMembers(ctx context.Context) ([]models.Member, error)

	CreateAssignment(ctx context.Context, a *models.Assignment) error
	GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error)
	ListAssignments(ctx context.Context, projectID uuid.UUID) ([]models.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, a *models.Assignment) error
}

// AssignmentService runs the worker task track that sits next to each
// step. It never changes step status.
type AssignmentService struct {
	store  AssignmentStore
	mail   *mailer
	logger *zap.Logger
}

// Actor is the authenticated caller of a status change.
type Actor struct {
	UserID string
	Role   workflow.Role
}

func NewAssignmentService(store AssignmentStore, notifier Notifier, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{
		store:  store,
		mail:   newMailer(notifier, logger),
		logger: logger,
	}
}

// FlushNotifications blocks until every queued email has been delivered or
// given up on.
func (s *AssignmentService) FlushNotifications() {
	s.mail.wait()
}

// ==================== members ====================

func (s *AssignmentService) CreateMember(ctx context.Context, req models.CreateMemberRequest) (*models.Member, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: member name is required", workflow.ErrValidation)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", workflow.ErrValidation, req.Email)
	}
	role, err := workflow.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	member := &models.Member{
		ID:    uuid.New(),
		Name:  name,
		Email: strings.ToLower(addr.Address),
		Role:  role,
	}
	if req.UserID != "" {
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid user id", workflow.ErrValidation)
		}
		member.UserID = uuid.NullUUID{UUID: userID, Valid: true}
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *AssignmentService) ListMembers(ctx context.Context) ([]models.Member, error) {
	return s.store.ListMembers(ctx)
}

// ==================== assignments ====================

func (s *AssignmentService) CreateAssignment(ctx context.Context, projectID uuid.UUID, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid worker id", workflow.ErrValidation)
	}

	var directorID uuid.NullUUID
	if req.DirectorID != "" {
		id, err := uuid.Parse(req.DirectorID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid director id", workflow.ErrValidation)
		}
		director, err := s.store.GetMember(ctx, id)
		if err != nil {
			return nil, err
		}
		if !director.Role.CanReview() {
			return nil, fmt.Errorf("%w: member %s cannot review work", workflow.ErrValidation, director.Name)
		}
		directorID = uuid.NullUUID{UUID: id, Valid: true}
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	step := stepAt(project.Steps, req.StepOrder)
	if step == nil {
		return nil, fmt.Errorf("%w: step %d", workflow.ErrNotFound, req.StepOrder)
	}

	worker, err := s.store.GetMember(ctx, workerID)
	if err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		ID:         uuid.New(),
		ProjectID:  projectID,
		StepOrder:  req.StepOrder,
		WorkerID:   workerID,
		DirectorID: directorID,
		DueDate:    nullTime(req.DueDate),
		Notes:      strings.TrimSpace(req.Notes),
		Status:     workflow.AssignmentPending,
	}
	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"workerName":  worker.Name,
		"projectName": project.Name,
		"stepName":    step.Name,
		"notes":       assignment.Notes,
	}
	if req.DueDate != nil {
		data["dueDate"] = req.DueDate.Format("2006-01-02")
	}
	s.mail.enqueue(ctx, notify.Message{Type: notify.TaskAssigned, To: worker.Email, Data: data})

	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.Int("order", req.StepOrder),
	)
	return assignment, nil
}

func (s *AssignmentService) ListAssignments(ctx context.Context, projectID uuid.UUID) ([]models.Assignment, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListAssignments(ctx, projectID)
}

// UpdateStatus moves an assignment along its lifecycle. Workers may only
// move assignments they own. Only reviewers may approve a submission or
// send it back; a rejection keeps the comment for the worker.
func (s *AssignmentService) UpdateStatus(ctx context.Context, assignmentID uuid.UUID, actor Actor, req models.UpdateAssignmentStatusRequest) (*models.Assignment, error) {
	next, err := workflow.ParseAssignmentStatus(req.Status)
	if err != nil {
		return nil, err
	}

	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	if !actor.Role.CanReview() {
		if err := s.checkOwner(ctx, actor, assignment); err != nil {
			return nil, err
		}
	}

	review := assignment.Status == workflow.AssignmentSubmitted
	if review && !actor.Role.CanReview() {
		return nil, fmt.Errorf("%w: only reviewers can approve or reject submissions", workflow.ErrInvalidOperation)
	}
	if err := workflow.TransitionAssignment(assignment.Status, next); err != nil {
		return nil, err
	}

	assignment.Status = next
	if review {
		assignment.ReviewComment = nullString(req.Comment)
	}
	if err := s.store.UpdateAssignmentStatus(ctx, assignment); err != nil {
		return nil, err
	}

	s.logger.Info("assignment status changed",
		zap.String("assignment_id", assignmentID.String()),
		zap.String("status", string(next)),
	)

	switch {
	case review:
		s.notifyReview(ctx, assignment, req.Comment)
	case next == workflow.AssignmentSubmitted:
		s.notifySubmission(ctx, assignment, req.Comment)
	}
	return assignment, nil
}

// checkOwner resolves the actor's member record through their user id and
// requires it to be the assignment's worker.
func (s *AssignmentService) checkOwner(ctx context.Context, actor Actor, a *models.Assignment) error {
	userID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return fmt.Errorf("%w: assignment belongs to another worker", workflow.ErrInvalidOperation)
	}
	member, err := s.store.GetMemberByUserID(ctx, userID)
	if errors.Is(err, workflow.ErrNotFound) {
		return fmt.Errorf("%w: assignment belongs to another worker", workflow.ErrInvalidOperation)
	}
	if err != nil {
		return err
	}
	if member.ID != a.WorkerID {
		return fmt.Errorf("%w: assignment belongs to another worker", workflow.ErrInvalidOperation)
	}
	return nil
}

// notifySubmission tells the assigned director about new work, or every
// master and admin when nobody is assigned to review it.
func (s *AssignmentService) notifySubmission(ctx context.Context, a *models.Assignment, comment string) {
	recipients, err := s.reviewers(ctx, a)
	if err != nil {
		s.logger.Warn("failed to resolve reviewers for notification",
			zap.String("assignment_id", a.ID.String()), zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	worker, err := s.store.GetMember(ctx, a.WorkerID)
	if err != nil {
		s.logger.Warn("failed to load worker for notification",
			zap.String("assignment_id", a.ID.String()), zap.Error(err))
		return
	}
	project, err := s.store.GetProject(ctx, a.ProjectID)
	if err != nil {
		s.logger.Warn("failed to load project for notification",
			zap.String("assignment_id", a.ID.String()), zap.Error(err))
		return
	}
	stepName := ""
	if step := stepAt(project.Steps, a.StepOrder); step != nil {
		stepName = step.Name
	}

	for _, r := range recipients {
		s.mail.enqueue(ctx, notify.Message{
			Type: notify.SubmissionReceived,
			To:   r.Email,
			Data: map[string]interface{}{
				"directorName": r.Name,
				"workerName":   worker.Name,
				"projectName":  project.Name,
				"stepName":     stepName,
				"stage":        "submission",
				"comment":      comment,
			},
		})
	}
}

func (s *AssignmentService) reviewers(ctx context.Context, a *models.Assignment) ([]models.Member, error) {
	if a.DirectorID.Valid {
		director, err := s.store.GetMember(ctx, a.DirectorID.UUID)
		if err != nil && !errors.Is(err, workflow.ErrNotFound) {
			return nil, err
		}
		if director != nil && director.Email != "" {
			return []models.Member{*director}, nil
		}
	}

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Member
	for _, m := range members {
		if (m.Role == workflow.RoleMaster || m.Role == workflow.RoleAdmin) && m.Email != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *AssignmentService) notifyReview(ctx context.Context, a *models.Assignment, comment string) {
	worker, err := s.store.GetMember(ctx, a.WorkerID)
	if err != nil {
		s.logger.Warn("failed to load worker for notification",
			zap.String("assignment_id", a.ID.String()), zap.Error(err))
		return
	}
	project, err := s.store.GetProject(ctx, a.ProjectID)
	if err != nil {
		s.logger.Warn("failed to load project for notification",
			zap.String("assignment_id", a.ID.String()), zap.Error(err))
		return
	}

	data := map[string]interface{}{
		"workerName":  worker.Name,
		"projectName": project.Name,
	}
	if step := stepAt(project.Steps, a.StepOrder); step != nil {
		data["stepName"] = step.Name
	}

	msgType := notify.SubmissionApproved
	if a.Status == workflow.AssignmentInProgress {
		msgType = notify.SubmissionRejected
		data["comment"] = comment
	}
	s.mail.enqueue(ctx, notify.Message{Type: msgType, To: worker.Email, Data: data})
}
