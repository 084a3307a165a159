// Package memstore holds in-memory implementations of the service
// collaborators for tests.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/notify"
	"progress-tracker-backend/internal/workflow"
)

// Store implements services.ProjectStore and services.AssignmentStore.
type Store struct {
	mu          sync.Mutex
	clients     map[string]*models.Client
	projects    map[uuid.UUID]*models.Project
	milestones  map[uuid.UUID][]models.MilestoneRecord
	members     map[uuid.UUID]*models.Member
	assignments map[uuid.UUID]*models.Assignment

	ReplaceCalls int
	TouchCalls   int
	ReplaceErr   error
}

func NewStore() *Store {
	return &Store{
		clients:     make(map[string]*models.Client),
		projects:    make(map[uuid.UUID]*models.Project),
		milestones:  make(map[uuid.UUID][]models.MilestoneRecord),
		members:     make(map[uuid.UUID]*models.Member),
		assignments: make(map[uuid.UUID]*models.Assignment),
	}
}

func notFound(what string) error { return fmt.Errorf("%w: %s", workflow.ErrNotFound, what) }

func (m *Store) GetOrCreateClient(_ context.Context, name string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	c := &models.Client{ID: fmt.Sprintf("CL%04d", len(m.clients)+1), Name: name}
	m.clients[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *Store) GetClient(_ context.Context, id string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, notFound("client")
	}
	cp := *c
	return &cp, nil
}

func (m *Store) UpdateClientEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return notFound("client")
	}
	c.Email = sql.NullString{String: email, Valid: email != ""}
	return nil
}

func (m *Store) CreateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.Steps = append([]workflow.Step(nil), p.Steps...)
	m.projects[p.ID] = &cp
	return nil
}

func (m *Store) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, notFound("project")
	}
	cp := *p
	cp.Steps = append([]workflow.Step(nil), p.Steps...)
	if c, ok := m.clients[p.ClientID]; ok {
		cp.ClientEmail = c.Email
	}
	return &cp, nil
}

func (m *Store) ListProjects(_ context.Context, clientID string) ([]models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Project
	for _, p := range m.projects {
		if clientID == "" || p.ClientID == clientID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *Store) UpdateProject(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[p.ID]
	if !ok {
		return notFound("project")
	}
	steps := existing.Steps
	cp := *p
	cp.Steps = steps
	m.projects[p.ID] = &cp
	return nil
}

func (m *Store) DeleteProject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return notFound("project")
	}
	delete(m.projects, id)
	delete(m.milestones, id)
	return nil
}

func (m *Store) LoadSteps(_ context.Context, id uuid.UUID) ([]workflow.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, notFound("project")
	}
	return workflow.Normalize(p.Steps), nil
}

func (m *Store) ReplaceSteps(_ context.Context, id uuid.UUID, steps []workflow.Step, remap workflow.OrderMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReplaceErr != nil {
		return m.ReplaceErr
	}
	p, ok := m.projects[id]
	if !ok {
		return notFound("project")
	}
	m.ReplaceCalls++
	p.Steps = append([]workflow.Step(nil), steps...)
	if remap == nil {
		return nil
	}
	for aid, a := range m.assignments {
		if a.ProjectID != id {
			continue
		}
		next, ok := remap.Apply(a.StepOrder)
		if !ok {
			delete(m.assignments, aid)
			continue
		}
		a.StepOrder = next
	}
	return nil
}

func (m *Store) TouchProjectUpdatedAt(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return notFound("project")
	}
	m.TouchCalls++
	p.UpdatedAt = p.UpdatedAt.Add(time.Minute)
	return nil
}

func (m *Store) ListMilestoneRecords(_ context.Context, id uuid.UUID) ([]models.MilestoneRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MilestoneRecord(nil), m.milestones[id]...), nil
}

func (m *Store) RecordMilestone(_ context.Context, id uuid.UUID, milestoneID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.milestones[id] {
		if r.MilestoneID == milestoneID {
			return nil
		}
	}
	m.milestones[id] = append(m.milestones[id], models.MilestoneRecord{MilestoneID: milestoneID, AchievedAt: at})
	return nil
}

func (m *Store) CreateMember(_ context.Context, mem *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members {
		if existing.Email == mem.Email {
			return fmt.Errorf("%w: member email %s already exists", workflow.ErrInvalidOperation, mem.Email)
		}
		if mem.UserID.Valid && existing.UserID == mem.UserID {
			return fmt.Errorf("%w: user %s already has a member", workflow.ErrInvalidOperation, mem.UserID.UUID)
		}
	}
	cp := *mem
	m.members[mem.ID] = &cp
	return nil
}

func (m *Store) GetMember(_ context.Context, id uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, notFound("member")
	}
	cp := *mem
	return &cp, nil
}

func (m *Store) GetMemberByUserID(_ context.Context, userID uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.UserID.Valid && mem.UserID.UUID == userID {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, notFound("member")
}

func (m *Store) ListMembers(_ context.Context) ([]models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Member
	for _, mem := range m.members {
		out = append(out, *mem)
	}
	return out, nil
}

func (m *Store) CreateAssignment(_ context.Context, a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.ProjectID == a.ProjectID && existing.StepOrder == a.StepOrder {
			return fmt.Errorf("%w: step %d already has an assignment", workflow.ErrInvalidOperation, a.StepOrder)
		}
	}
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

func (m *Store) GetAssignment(_ context.Context, id uuid.UUID) (*models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, notFound("assignment")
	}
	cp := *a
	return &cp, nil
}

func (m *Store) ListAssignments(_ context.Context, projectID uuid.UUID) ([]models.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Assignment
	for _, a := range m.assignments {
		if a.ProjectID == projectID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *Store) UpdateAssignmentStatus(_ context.Context, a *models.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[a.ID]; !ok {
		return notFound("assignment")
	}
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

type Event struct {
	ProjectID uuid.UUID
	Type      string
	Payload   map[string]interface{}
}

type Publisher struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (r *Publisher) PublishProjectEvent(_ context.Context, projectID uuid.UUID, event string, payload map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{ProjectID: projectID, Type: event, Payload: payload})
	return r.Err
}

func (r *Publisher) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}

type Notifier struct {
	mu       sync.Mutex
	Messages []notify.Message
	Err      error
	// Block, when set, holds every Send until it is closed or the
	// context ends.
	Block    chan struct{}
}

func (r *Notifier) Send(ctx context.Context, msg notify.Message) error {
	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
	return r.Err
}

// Sent returns a copy of the delivered messages.
func (r *Notifier) Sent() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.Messages...)
}

type Files struct {
	Uploads map[string][]byte
	Deleted []uuid.UUID
}

func (f *Files) UploadDeliverable(clientID string, projectID uuid.UUID, filename, _ string, data []byte) (string, string, error) {
	if f.Uploads == nil {
		f.Uploads = make(map[string][]byte)
	}
	path := "clients/" + clientID + "/projects/" + projectID.String() + "/" + filename
	f.Uploads[path] = data
	return path, "https://cdn.test/" + path, nil
}

func (f *Files) DeleteProjectFiles(_ string, projectID uuid.UUID) error {
	f.Deleted = append(f.Deleted, projectID)
	return nil
}
