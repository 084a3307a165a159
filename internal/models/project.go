package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"progress-tracker-backend/internal/workflow"
)

type Project struct {
	ID          uuid.UUID
	Name        string
	ClientID    string
	ClientName  string
	ClientEmail sql.NullString
	Description string
	DueDate     sql.NullTime
	FolderURL   sql.NullString
	DeliveryURL sql.NullString
	CreatedBy   uuid.NullUUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Steps       []workflow.Step
}

type Client struct {
	ID        string
	Name      string
	Email     sql.NullString
	CreatedAt time.Time
}

type MilestoneRecord struct {
	MilestoneID string
	AchievedAt  time.Time
}

// State is the view of the project the milestone predicates evaluate.
func (p *Project) State() workflow.ProjectState {
	return workflow.ProjectState{CreatedAt: p.CreatedAt, Steps: p.Steps}
}
