package supabase

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/workflow"
)

// PortalClient reads client-facing project data through PostgREST with the
// publishable key. Row level security limits it to SELECT.
type PortalClient struct {
	client *supabase.Client
}

func NewPortalClient(client *supabase.Client) *PortalClient {
	return &PortalClient{client: client}
}

type projectRow struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	ClientID    string     `json:"client_id"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	DeliveryURL *string    `json:"delivery_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type stepRow struct {
	ProjectID   uuid.UUID  `json:"project_id"`
	Order       int        `json:"step_order"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	DueDate     *time.Time `json:"due_date"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}

type milestoneRow struct {
	MilestoneID string    `json:"milestone_id"`
	AchievedAt  time.Time `json:"achieved_at"`
}

const (
	portalProjectColumns = "id,name,client_id,description,due_date,delivery_url,created_at,updated_at"
	portalStepColumns    = "project_id,step_order,name,description,url,due_date,status,completed_at"
)

func (r projectRow) toModel() models.Project {
	p := models.Project{
		ID:          r.ID,
		Name:        r.Name,
		ClientID:    r.ClientID,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DueDate != nil {
		p.DueDate.Time, p.DueDate.Valid = *r.DueDate, true
	}
	if r.DeliveryURL != nil {
		p.DeliveryURL.String, p.DeliveryURL.Valid = *r.DeliveryURL, true
	}
	return p
}

func (r stepRow) toStep() (workflow.Step, error) {
	status, err := workflow.ParseStatus(r.Status)
	if err != nil {
		return workflow.Step{}, err
	}
	return workflow.Step{
		Order:       r.Order,
		Name:        r.Name,
		Description: r.Description,
		URL:         r.URL,
		DueDate:     r.DueDate,
		Status:      status,
		CompletedAt: r.CompletedAt,
	}, nil
}

// ListClientProjects returns every project of a client with its steps.
func (p *PortalClient) ListClientProjects(clientID string) ([]models.Project, error) {
	var rows []projectRow
	_, err := p.client.From("projects").
		Select(portalProjectColumns, "", false).
		Eq("client_id", clientID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query client projects: %w", err)
	}

	projects := make([]models.Project, 0, len(rows))
	for _, row := range rows {
		project := row.toModel()
		steps, err := p.projectSteps(project.ID)
		if err != nil {
			return nil, err
		}
		project.Steps = steps
		projects = append(projects, project)
	}
	return projects, nil
}

func (p *PortalClient) GetProject(projectID uuid.UUID) (*models.Project, error) {
	var rows []projectRow
	_, err := p.client.From("projects").
		Select(portalProjectColumns, "", false).
		Eq("id", projectID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: project %s", workflow.ErrNotFound, projectID)
	}

	project := rows[0].toModel()
	steps, err := p.projectSteps(projectID)
	if err != nil {
		return nil, err
	}
	project.Steps = steps
	return &project, nil
}

func (p *PortalClient) ListMilestoneRecords(projectID uuid.UUID) ([]models.MilestoneRecord, error) {
	var rows []milestoneRow
	_, err := p.client.From("milestone_records").
		Select("milestone_id,achieved_at", "", false).
		Eq("project_id", projectID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestone records: %w", err)
	}

	records := make([]models.MilestoneRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.MilestoneRecord{MilestoneID: row.MilestoneID, AchievedAt: row.AchievedAt})
	}
	return records, nil
}

func (p *PortalClient) projectSteps(projectID uuid.UUID) ([]workflow.Step, error) {
	var rows []stepRow
	_, err := p.client.From("project_steps").
		Select(portalStepColumns, "", false).
		Eq("project_id", projectID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	steps := make([]workflow.Step, 0, len(rows))
	for _, row := range rows {
		step, err := row.toStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	// PostgREST returns rows unordered without an order clause.
	return workflow.Normalize(steps), nil
}
