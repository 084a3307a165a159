package supabase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/workflow"
)

const uniqueViolation = "23505"

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (d *DatabaseClient) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}

// ==================== clients ====================

func (d *DatabaseClient) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var c models.Client
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM clients
		WHERE id = $1
	`, clientID).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "client "+clientID, "failed to get client")
	}
	return &c, nil
}

func (d *DatabaseClient) getClientByName(ctx context.Context, name string) (*models.Client, error) {
	var c models.Client
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at
		FROM clients
		WHERE name = $1
	`, name).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "client "+name, "failed to get client")
	}
	return &c, nil
}

// GetOrCreateClient returns the client with the given display name,
// creating it with a fresh short id when it does not exist yet.
func (d *DatabaseClient) GetOrCreateClient(ctx context.Context, name string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: client name is required", workflow.ErrValidation)
	}

	c, err := d.getClientByName(ctx, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, workflow.ErrNotFound) {
		return nil, err
	}

	for i := 0; i < 5; i++ {
		var created models.Client
		err := d.db.QueryRowContext(ctx, `
			INSERT INTO clients (id, name)
			VALUES ($1, $2)
			ON CONFLICT (name) DO NOTHING
			RETURNING id, name, email, created_at
		`, newClientID(), name).Scan(&created.ID, &created.Name, &created.Email, &created.CreatedAt)

		if err == nil {
			return &created, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			// created concurrently under the same name
			return d.getClientByName(ctx, name)
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			continue
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return nil, fmt.Errorf("failed to generate unique client id")
}

// UpdateClientEmail sets the contact address used for progress emails.
// An empty email clears it.
func (d *DatabaseClient) UpdateClientEmail(ctx context.Context, clientID, email string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE clients SET email = NULLIF($2, '') WHERE id = $1
	`, clientID, email)
	if err != nil {
		return fmt.Errorf("failed to update client email: %w", err)
	}
	return expectAffected(res, "client "+clientID)
}

func newClientID() string {
	return "CL" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// ==================== projects ====================

const projectColumns = `
	p.id, p.name, p.client_id, c.name, c.email, p.description, p.due_date,
	p.folder_url, p.delivery_url, p.created_by, p.created_at, p.updated_at`

func scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.Name, &p.ClientID, &p.ClientName, &p.ClientEmail, &p.Description, &p.DueDate,
		&p.FolderURL, &p.DeliveryURL, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts the project row and its steps in one transaction.
func (d *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (id, name, client_id, description, due_date, folder_url, delivery_url, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.ClientID, p.Description, p.DueDate, p.FolderURL, p.DeliveryURL, p.CreatedBy).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	if err := insertSteps(ctx, tx, p.ID, p.Steps); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}
	return nil
}

func (d *DatabaseClient) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	p, err := scanProject(d.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN clients c ON c.id = p.client_id
		WHERE p.id = $1
	`, projectID))
	if err != nil {
		return nil, notFoundOr(err, "project "+projectID.String(), "failed to get project")
	}

	steps, err := d.LoadSteps(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p.Steps = steps
	return p, nil
}

// ListProjects returns projects newest first, optionally restricted to one
// client, each with its steps loaded.
func (d *DatabaseClient) ListProjects(ctx context.Context, clientID string) ([]models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects p
		JOIN clients c ON c.id = p.client_id
		WHERE ($1 = '' OR p.client_id = $1)
		ORDER BY p.created_at DESC
	`
	rows, err := d.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	index := make(map[uuid.UUID]int)
	var ids []string
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		index[p.ID] = len(projects)
		ids = append(ids, p.ID.String())
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if len(projects) == 0 {
		return projects, nil
	}

	stepRows, err := d.db.QueryContext(ctx, `
		SELECT project_id, step_order, name, description, url, due_date, status, completed_at
		FROM project_steps
		WHERE project_id = ANY($1::uuid[])
		ORDER BY project_id, step_order
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		projectID, step, err := scanStep(stepRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[projectID]; ok {
			projects[i].Steps = append(projects[i].Steps, step)
		}
	}
	if err := stepRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	return projects, nil
}

// UpdateProject writes the project's metadata columns and bumps updated_at.
func (d *DatabaseClient) UpdateProject(ctx context.Context, p *models.Project) error {
	err := d.db.QueryRowContext(ctx, `
		UPDATE projects
		SET name = $1, client_id = $2, description = $3, due_date = $4,
		    folder_url = $5, delivery_url = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`, p.Name, p.ClientID, p.Description, p.DueDate, p.FolderURL, p.DeliveryURL, p.ID).Scan(&p.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "project "+p.ID.String(), "failed to update project")
	}
	return nil
}

// DeleteProject removes the project; steps, milestone records and
// assignments go with it through ON DELETE CASCADE.
func (d *DatabaseClient) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return expectAffected(res, "project "+projectID.String())
}

func (d *DatabaseClient) TouchProjectUpdatedAt(ctx context.Context, projectID uuid.UUID) error {
	res, err := d.db.ExecContext(ctx, `UPDATE projects SET updated_at = NOW() WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	return expectAffected(res, "project "+projectID.String())
}

// ==================== steps ====================

func scanStep(rows *sql.Rows) (uuid.UUID, workflow.Step, error) {
	var (
		projectID   uuid.UUID
		step        workflow.Step
		status      string
		dueDate     sql.NullTime
		completedAt sql.NullTime
	)
	err := rows.Scan(&projectID, &step.Order, &step.Name, &step.Description, &step.URL,
		&dueDate, &status, &completedAt)
	if err != nil {
		return uuid.Nil, step, fmt.Errorf("failed to scan step: %w", err)
	}
	step.Status, err = workflow.ParseStatus(status)
	if err != nil {
		return uuid.Nil, step, err
	}
	step.DueDate = timePtr(dueDate)
	step.CompletedAt = timePtr(completedAt)
	return projectID, step, nil
}

func (d *DatabaseClient) LoadSteps(ctx context.Context, projectID uuid.UUID) ([]workflow.Step, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: project %s", workflow.ErrNotFound, projectID)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT project_id, step_order, name, description, url, due_date, status, completed_at
		FROM project_steps
		WHERE project_id = $1
		ORDER BY step_order
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	var steps []workflow.Step
	for rows.Next() {
		_, step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}

	return workflow.Normalize(steps), nil
}

// ReplaceSteps swaps the whole step list of a project in one transaction,
// so a cascade is either fully persisted or not at all. The project row is
// locked for the duration; concurrent writers still resolve last-write-wins.
// A non-nil remap moves the project's assignments in the same transaction.
func (d *DatabaseClient) ReplaceSteps(ctx context.Context, projectID uuid.UUID, steps []workflow.Step, remap workflow.OrderMap) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM projects WHERE id = $1 FOR UPDATE`, projectID).Scan(&locked)
	if err != nil {
		return notFoundOr(err, "project "+projectID.String(), "failed to lock project")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_steps WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	if err := insertSteps(ctx, tx, projectID, steps); err != nil {
		return err
	}

	if remap != nil {
		if err := remapAssignments(ctx, tx, projectID, remap); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit steps: %w", err)
	}
	return nil
}

// remapAssignments deletes assignments whose step is gone and moves the
// rest to their new order. Moves go through negative orders first so the
// (project_id, step_order) constraint holds at every statement.
func remapAssignments(ctx context.Context, tx *sql.Tx, projectID uuid.UUID, remap workflow.OrderMap) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, step_order FROM assignments WHERE project_id = $1 FOR UPDATE
	`, projectID)
	if err != nil {
		return fmt.Errorf("failed to lock assignments: %w", err)
	}

	type move struct {
		id    uuid.UUID
		order int
	}
	var (
		moves   []move
		removed []uuid.UUID
	)
	for rows.Next() {
		var m move
		if err := rows.Scan(&m.id, &m.order); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan assignment: %w", err)
		}
		next, ok := remap.Apply(m.order)
		switch {
		case !ok:
			removed = append(removed, m.id)
		case next != m.order:
			moves = append(moves, move{id: m.id, order: next})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read assignments: %w", err)
	}

	for _, id := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete assignment %s: %w", id, err)
		}
	}
	if len(moves) == 0 {
		return nil
	}

	for _, m := range moves {
		if _, err := tx.ExecContext(ctx, `UPDATE assignments SET step_order = $2 WHERE id = $1`, m.id, -m.order); err != nil {
			return fmt.Errorf("failed to move assignment %s: %w", m.id, err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE assignments SET step_order = -step_order, updated_at = NOW()
		WHERE project_id = $1 AND step_order < 0
	`, projectID)
	if err != nil {
		return fmt.Errorf("failed to settle assignment orders: %w", err)
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, projectID uuid.UUID, steps []workflow.Step) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO project_steps (project_id, step_order, name, description, url, due_date, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare step insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range steps {
		_, err := stmt.ExecContext(ctx, projectID, s.Order, s.Name, s.Description, s.URL,
			nullTime(s.DueDate), string(s.Status), nullTime(s.CompletedAt))
		if err != nil {
			return fmt.Errorf("failed to insert step %d: %w", s.Order, err)
		}
	}
	return nil
}

// ==================== milestone records ====================

func (d *DatabaseClient) ListMilestoneRecords(ctx context.Context, projectID uuid.UUID) ([]models.MilestoneRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT milestone_id, achieved_at
		FROM milestone_records
		WHERE project_id = $1
		ORDER BY achieved_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestone records: %w", err)
	}
	defer rows.Close()

	var records []models.MilestoneRecord
	for rows.Next() {
		var r models.MilestoneRecord
		if err := rows.Scan(&r.MilestoneID, &r.AchievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan milestone record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordMilestone stores the first time a milestone was reached; later
// calls for the same milestone are ignored.
func (d *DatabaseClient) RecordMilestone(ctx context.Context, projectID uuid.UUID, milestoneID string, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO milestone_records (project_id, milestone_id, achieved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, milestone_id) DO NOTHING
	`, projectID, milestoneID, at)
	if err != nil {
		return fmt.Errorf("failed to record milestone: %w", err)
	}
	return nil
}

// ==================== members ====================

func (d *DatabaseClient) CreateMember(ctx context.Context, m *models.Member) error {
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO members (id, name, email, role, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.Name, m.Email, string(m.Role), m.UserID).Scan(&m.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: member email or user id already exists", workflow.ErrInvalidOperation)
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

const memberColumns = `id, name, email, role, user_id, created_at`

func scanMember(row interface{ Scan(...interface{}) error }) (*models.Member, error) {
	var (
		m    models.Member
		role string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &role, &m.UserID, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = workflow.Role(role)
	return &m, nil
}

func (d *DatabaseClient) GetMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	m, err := scanMember(d.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE id = $1
	`, memberID))
	if err != nil {
		return nil, notFoundOr(err, "member "+memberID.String(), "failed to get member")
	}
	return m, nil
}

// GetMemberByUserID resolves the member linked to an auth user.
func (d *DatabaseClient) GetMemberByUserID(ctx context.Context, userID uuid.UUID) (*models.Member, error) {
	m, err := scanMember(d.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE user_id = $1
	`, userID))
	if err != nil {
		return nil, notFoundOr(err, "member for user "+userID.String(), "failed to get member")
	}
	return m, nil
}

func (d *DatabaseClient) ListMembers(ctx context.Context) ([]models.Member, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ==================== assignments ====================

const assignmentColumns = `
	id, project_id, step_order, worker_id, director_id, due_date, notes,
	status, review_comment, created_at, updated_at`

func scanAssignment(row interface{ Scan(...interface{}) error }) (*models.Assignment, error) {
	var (
		a      models.Assignment
		status string
	)
	err := row.Scan(&a.ID, &a.ProjectID, &a.StepOrder, &a.WorkerID, &a.DirectorID, &a.DueDate,
		&a.Notes, &status, &a.ReviewComment, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = workflow.AssignmentStatus(status)
	return &a, nil
}

func (d *DatabaseClient) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO assignments (id, project_id, step_order, worker_id, director_id, due_date, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, a.ID, a.ProjectID, a.StepOrder, a.WorkerID, a.DirectorID, a.DueDate, a.Notes, string(a.Status)).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: step %d already has an assignment", workflow.ErrInvalidOperation, a.StepOrder)
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (d *DatabaseClient) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.Assignment, error) {
	a, err := scanAssignment(d.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE id = $1
	`, assignmentID))
	if err != nil {
		return nil, notFoundOr(err, "assignment "+assignmentID.String(), "failed to get assignment")
	}
	return a, nil
}

func (d *DatabaseClient) ListAssignments(ctx context.Context, projectID uuid.UUID) ([]models.Assignment, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE project_id = $1
		ORDER BY step_order
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func (d *DatabaseClient) UpdateAssignmentStatus(ctx context.Context, a *models.Assignment) error {
	err := d.db.QueryRowContext(ctx, `
		UPDATE assignments
		SET status = $1, review_comment = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`, string(a.Status), a.ReviewComment, a.ID).Scan(&a.UpdatedAt)
	if err != nil {
		return notFoundOr(err, "assignment "+a.ID.String(), "failed to update assignment")
	}
	return nil
}

// ==================== helpers ====================

func notFoundOr(err error, what, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, what)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, what)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
