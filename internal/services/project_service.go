package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/notify"
	"progress-tracker-backend/internal/supabase"
	"progress-tracker-backend/internal/workflow"
)

// StepStore is the persistence collaborator of the step workflow. Writes
// replace the whole snapshot so a cascade lands atomically. remap moves
// assignments along with their steps in the same write; orders missing
// from a non-nil remap lose their assignment.
type StepStore interface {
	LoadSteps(ctx context.Context, projectID uuid.UUID) ([]workflow.Step, error)
	ReplaceSteps(ctx context.Context, projectID uuid.UUID, steps []workflow.Step, remap workflow.OrderMap) error
	TouchProjectUpdatedAt(ctx context.Context, projectID uuid.UUID) error
}

type MilestoneStore interface {
	ListMilestoneRecords(ctx context.Context, projectID uuid.UUID) ([]models.MilestoneRecord, error)
	RecordMilestone(ctx context.Context, projectID uuid.UUID, milestoneID string, at time.Time) error
}

type ProjectStore interface {
	StepStore
	MilestoneStore

	GetOrCreateClient(ctx context.Context, name string) (*models.Client, error)
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
	UpdateClientEmail(ctx context.Context, clientID, email string) error
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, clientID string) ([]models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, projectID uuid.UUID) error
}

type EventPublisher interface {
	PublishProjectEvent(ctx context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) error
}

type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

type FileStore interface {
	UploadDeliverable(clientID string, projectID uuid.UUID, filename, contentType string, data []byte) (string, string, error)
	DeleteProjectFiles(clientID string, projectID uuid.UUID) error
}

// StepMutationResult is the outcome of one step operation.
type StepMutationResult struct {
	Project       *models.Project
	Changed       bool
	Step          *workflow.Step
	Steps         []workflow.Step
	Progress      int
	CurrentStep   *workflow.Step
	NewMilestones []workflow.Milestone
}

type MilestoneOverview struct {
	Project  *models.Project
	Achieved []workflow.Milestone
	Next     *workflow.Milestone
	Records  []models.MilestoneRecord
}

type Deliverable struct {
	StoragePath string
	URL         string
}

type ProjectService struct {
	store    ProjectStore
	events   EventPublisher
	notifier Notifier
	files    FileStore
	mail     *mailer
	engine   *workflow.Engine
	now      func() time.Time
	logger   *zap.Logger
}

func NewProjectService(
	store ProjectStore,
	events EventPublisher,
	notifier Notifier,
	files FileStore,
	logger *zap.Logger,
) *ProjectService {
	now := func() time.Time { return time.Now().UTC() }
	return &ProjectService{
		store:    store,
		events:   events,
		notifier: notifier,
		files:    files,
		mail:     newMailer(notifier, logger),
		engine:   workflow.NewEngineWithClock(now),
		now:      now,
		logger:   logger,
	}
}

// WithClock pins the clock used for step timestamps and milestone records.
func (s *ProjectService) WithClock(now func() time.Time) *ProjectService {
	s.now = now
	s.engine = workflow.NewEngineWithClock(now)
	return s
}

// FlushNotifications blocks until every queued email has been delivered or
// given up on.
func (s *ProjectService) FlushNotifications() {
	s.mail.wait()
}

// ==================== projects ====================

func (s *ProjectService) CreateProject(ctx context.Context, req models.CreateProjectRequest, createdBy uuid.NullUUID) (*models.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", workflow.ErrValidation)
	}

	steps := workflow.DefaultSteps()
	if len(req.Steps) > 0 {
		steps = make([]workflow.Step, 0, len(req.Steps))
		for i, sr := range req.Steps {
			in := StepInputFromRequest(sr)
			if err := in.Validate(); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
			steps = append(steps, workflow.Step{
				Order:       i + 1,
				Name:        strings.TrimSpace(in.Name),
				Description: strings.TrimSpace(in.Description),
				URL:         strings.TrimSpace(in.URL),
				DueDate:     in.DueDate,
				Status:      workflow.StatusPending,
			})
		}
	}

	normalized, err := normalizeEmail(req.ClientEmail)
	if err != nil {
		return nil, err
	}
	// an omitted email leaves an existing client's address alone
	var email *string
	if normalized != "" {
		email = &normalized
	}
	client, err := s.resolveClient(ctx, req.Client, email)
	if err != nil {
		return nil, err
	}

	project := &models.Project{
		ID:          uuid.New(),
		Name:        name,
		ClientID:    client.ID,
		ClientName:  client.Name,
		ClientEmail: client.Email,
		Description: strings.TrimSpace(req.Description),
		DueDate:     nullTime(req.DueDate),
		FolderURL:   nullString(req.FolderURL),
		CreatedBy:   createdBy,
		Steps:       steps,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	// project_start is achieved from the outset
	state := project.State()
	state.Now = s.now()
	for _, m := range workflow.Achieved(state) {
		if err := s.store.RecordMilestone(ctx, project.ID, m.ID, state.Now); err != nil {
			return nil, err
		}
	}

	s.logger.Info("project created",
		zap.String("project_id", project.ID.String()),
		zap.String("client_id", project.ClientID),
		zap.Int("steps", len(steps)),
	)
	return project, nil
}

func (s *ProjectService) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return s.store.GetProject(ctx, projectID)
}

func (s *ProjectService) ListProjects(ctx context.Context, clientID string) ([]models.Project, error) {
	return s.store.ListProjects(ctx, clientID)
}

func (s *ProjectService) UpdateProject(ctx context.Context, projectID uuid.UUID, req models.UpdateProjectRequest) (*models.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: project name is required", workflow.ErrValidation)
		}
		project.Name = name
	}
	if req.ClearDueDate && req.DueDate != nil {
		return nil, fmt.Errorf("%w: due_date and clear_due_date are mutually exclusive", workflow.ErrValidation)
	}
	var email *string
	if req.ClientEmail != nil {
		normalized, err := normalizeEmail(*req.ClientEmail)
		if err != nil {
			return nil, err
		}
		email = &normalized
	}

	if req.Client != nil || email != nil {
		name := project.ClientName
		if req.Client != nil {
			name = *req.Client
		}
		client, err := s.resolveClient(ctx, name, email)
		if err != nil {
			return nil, err
		}
		project.ClientID = client.ID
		project.ClientName = client.Name
		project.ClientEmail = client.Email
	}
	if req.Description != nil {
		project.Description = strings.TrimSpace(*req.Description)
	}
	switch {
	case req.ClearDueDate:
		project.DueDate = sql.NullTime{}
	case req.DueDate != nil:
		project.DueDate = nullTime(req.DueDate)
	}
	if req.FolderURL != nil {
		project.FolderURL = nullString(*req.FolderURL)
	}
	if req.DeliveryURL != nil {
		project.DeliveryURL = nullString(*req.DeliveryURL)
	}

	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}

	s.publish(ctx, projectID, supabase.EventProjectUpdated,
		supabase.ProjectUpdatedPayload(project.Name, project.DeliveryURL.String))
	return project, nil
}

func (s *ProjectService) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}

	if s.files != nil {
		if err := s.files.DeleteProjectFiles(project.ClientID, projectID); err != nil {
			s.logger.Warn("failed to delete project files",
				zap.String("project_id", projectID.String()), zap.Error(err))
		}
	}
	s.publish(ctx, projectID, supabase.EventProjectDeleted, nil)

	s.logger.Info("project deleted", zap.String("project_id", projectID.String()))
	return nil
}

// UploadDeliverable stores a file for the project and makes its public URL
// the project's delivery URL.
func (s *ProjectService) UploadDeliverable(ctx context.Context, projectID uuid.UUID, filename, contentType string, data []byte) (*Deliverable, error) {
	if s.files == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", workflow.ErrInvalidOperation)
	}
	if strings.TrimSpace(filename) == "" || len(data) == 0 {
		return nil, fmt.Errorf("%w: a non-empty file is required", workflow.ErrValidation)
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	path, url, err := s.files.UploadDeliverable(project.ClientID, projectID, filename, contentType, data)
	if err != nil {
		return nil, err
	}

	project.DeliveryURL = nullString(url)
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}

	s.publish(ctx, projectID, supabase.EventProjectUpdated, supabase.ProjectUpdatedPayload(project.Name, url))
	return &Deliverable{StoragePath: path, URL: url}, nil
}

// ==================== milestones ====================

func (s *ProjectService) Milestones(ctx context.Context, projectID uuid.UUID) (*MilestoneOverview, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListMilestoneRecords(ctx, projectID)
	if err != nil {
		return nil, err
	}

	state := project.State()
	state.Now = s.now()
	overview := &MilestoneOverview{
		Project:  project,
		Achieved: workflow.Achieved(state),
		Records:  records,
	}
	if next, ok := workflow.Next(state); ok {
		overview.Next = &next
	}
	return overview, nil
}

// ==================== steps ====================

func (s *ProjectService) SetStepStatus(ctx context.Context, projectID uuid.UUID, order int, status workflow.Status) (*StepMutationResult, error) {
	return s.mutate(ctx, projectID, "set_status", func(steps []workflow.Step) (stepChange, error) {
		out, err := s.engine.SetStepStatus(steps, order, status)
		if err != nil {
			return stepChange{}, err
		}
		return stepChange{steps: out, touched: stepAt(out, order), changed: !workflow.Equal(steps, out)}, nil
	})
}

func (s *ProjectService) AddStep(ctx context.Context, projectID uuid.UUID, in workflow.StepInput, insertAt *int) (*StepMutationResult, error) {
	return s.mutate(ctx, projectID, "add", func(steps []workflow.Step) (stepChange, error) {
		out, added, err := s.engine.AddStep(steps, in, insertAt)
		if err != nil {
			return stepChange{}, err
		}
		return stepChange{
			steps:   out,
			touched: &added,
			remap:   workflow.InsertionMap(len(steps), added.Order),
			changed: true,
		}, nil
	})
}

func (s *ProjectService) UpdateStep(ctx context.Context, projectID uuid.UUID, order int, in workflow.StepInput) (*StepMutationResult, error) {
	return s.mutate(ctx, projectID, "update", func(steps []workflow.Step) (stepChange, error) {
		out, err := s.engine.UpdateStep(steps, order, in)
		if err != nil {
			return stepChange{}, err
		}
		return stepChange{steps: out, touched: stepAt(out, order), changed: !workflow.Equal(steps, out)}, nil
	})
}

func (s *ProjectService) DeleteStep(ctx context.Context, projectID uuid.UUID, order int) (*StepMutationResult, error) {
	return s.mutate(ctx, projectID, "delete", func(steps []workflow.Step) (stepChange, error) {
		out, err := s.engine.DeleteStep(steps, order)
		if err != nil {
			return stepChange{}, err
		}
		return stepChange{steps: out, remap: workflow.DeletionMap(len(steps), order), changed: true}, nil
	})
}

func (s *ProjectService) ReorderStep(ctx context.Context, projectID uuid.UUID, order int, dir workflow.Direction) (*StepMutationResult, error) {
	return s.mutate(ctx, projectID, "reorder", func(steps []workflow.Step) (stepChange, error) {
		out, changed, err := s.engine.ReorderStep(steps, order, dir)
		if err != nil {
			return stepChange{}, err
		}
		if !changed {
			return stepChange{steps: out, touched: stepAt(out, order)}, nil
		}
		moved := order - 1
		if dir == workflow.DirectionDown {
			moved = order + 1
		}
		return stepChange{
			steps:   out,
			touched: stepAt(out, moved),
			remap:   workflow.SwapMap(len(steps), order, moved),
			changed: true,
		}, nil
	})
}

// stepChange is the outcome of one engine operation. remap tells the store
// how step orders moved so assignments can follow their step.
type stepChange struct {
	steps   []workflow.Step
	touched *workflow.Step
	remap   workflow.OrderMap
	changed bool
}

type stepOp func(steps []workflow.Step) (stepChange, error)

// mutate runs one engine operation against the stored snapshot and, when
// it changed anything, persists it and fans out milestones, events and
// client email.
func (s *ProjectService) mutate(ctx context.Context, projectID uuid.UUID, op string, fn stepOp) (*StepMutationResult, error) {
	before, err := s.store.LoadSteps(ctx, projectID)
	if err != nil {
		return nil, err
	}

	change, err := fn(before)
	if err != nil {
		return nil, err
	}
	after, changed := change.steps, change.changed

	result := &StepMutationResult{
		Changed: changed,
		Step:    change.touched,
		Steps:   after,
	}

	if changed {
		if err := s.store.ReplaceSteps(ctx, projectID, after, change.remap); err != nil {
			return nil, err
		}
		if err := s.store.TouchProjectUpdatedAt(ctx, projectID); err != nil {
			return nil, err
		}
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.Steps = after
	result.Project = project
	result.Progress = workflow.ProgressPercentage(after)
	if current, ok := workflow.CurrentStep(after); ok {
		result.CurrentStep = &current
	}

	if !changed {
		return result, nil
	}

	fresh, err := s.recordMilestones(ctx, project)
	if err != nil {
		return nil, err
	}
	result.NewMilestones = fresh

	s.logger.Info("steps updated",
		zap.String("project_id", projectID.String()),
		zap.String("op", op),
		zap.Int("progress", result.Progress),
		zap.Int("new_milestones", len(fresh)),
	)

	s.publish(ctx, projectID, supabase.EventStepUpdated, supabase.StepUpdatedPayload(after))
	for _, m := range fresh {
		s.publish(ctx, projectID, supabase.EventMilestoneAchieved, supabase.MilestoneAchievedPayload(m))
	}

	if completed := newlyCompleted(before, after); len(completed) > 0 {
		s.notifyProgress(ctx, project, completed, result.Progress)
	}

	return result, nil
}

func (s *ProjectService) recordMilestones(ctx context.Context, project *models.Project) ([]workflow.Milestone, error) {
	records, err := s.store.ListMilestoneRecords(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	seen := make([]string, len(records))
	for i, r := range records {
		seen[i] = r.MilestoneID
	}

	state := project.State()
	state.Now = s.now()
	fresh := workflow.EvaluateMilestones(state, seen)
	for _, m := range fresh {
		if err := s.store.RecordMilestone(ctx, project.ID, m.ID, state.Now); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func (s *ProjectService) publish(ctx context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishProjectEvent(ctx, projectID, event, payload); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("project_id", projectID.String()),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// notifyProgress queues the progressUpdate email for the client contact.
// stepName lists every step the mutation completed.
func (s *ProjectService) notifyProgress(ctx context.Context, project *models.Project, completed []workflow.Step, progress int) {
	if s.notifier == nil {
		return
	}
	client, err := s.store.GetClient(ctx, project.ClientID)
	if err != nil {
		s.logger.Warn("failed to load client for notification",
			zap.String("client_id", project.ClientID), zap.Error(err))
		return
	}
	if !client.Email.Valid || client.Email.String == "" {
		return
	}

	names := make([]string, len(completed))
	for i, st := range completed {
		names[i] = st.Name
	}
	s.mail.enqueue(ctx, notify.Message{
		Type: notify.ProgressUpdate,
		To:   client.Email.String,
		Data: map[string]interface{}{
			"clientName":     client.Name,
			"projectName":    project.Name,
			"stepName":       strings.Join(names, "、"),
			"completedSteps": names,
			"progress":       progress,
		},
	})
}

// resolveClient finds or creates the client by name and, when email is
// non-nil, stores it as the client's contact address ("" clears it).
func (s *ProjectService) resolveClient(ctx context.Context, name string, email *string) (*models.Client, error) {
	client, err := s.store.GetOrCreateClient(ctx, name)
	if err != nil {
		return nil, err
	}
	if email == nil || (*email == "" && !client.Email.Valid) || (client.Email.Valid && client.Email.String == *email) {
		return client, nil
	}
	if err := s.store.UpdateClientEmail(ctx, client.ID, *email); err != nil {
		return nil, err
	}
	client.Email = nullString(*email)
	return client, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid email %q", workflow.ErrValidation, raw)
	}
	return strings.ToLower(addr.Address), nil
}

// newlyCompleted lists steps completed in after that were not completed in
// before, matched by name and position since orders can shift.
func newlyCompleted(before, after []workflow.Step) []workflow.Step {
	done := make(map[string]int)
	for _, st := range before {
		if st.Status == workflow.StatusCompleted {
			done[st.Name]++
		}
	}
	var out []workflow.Step
	for _, st := range after {
		if st.Status != workflow.StatusCompleted {
			continue
		}
		if done[st.Name] > 0 {
			done[st.Name]--
			continue
		}
		out = append(out, st)
	}
	return out
}

func stepAt(steps []workflow.Step, order int) *workflow.Step {
	for i := range steps {
		if steps[i].Order == order {
			st := steps[i]
			return &st
		}
	}
	return nil
}

// StepInputFromRequest converts the HTTP body of a step into engine input.
func StepInputFromRequest(r models.StepRequest) workflow.StepInput {
	return workflow.StepInput{Name: r.Name, Description: r.Description, URL: r.URL, DueDate: r.DueDate}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
