package models

import (
	"time"

	"progress-tracker-backend/internal/workflow"
)

type ProjectResponse struct {
	ID          string          `json:"project_id"`
	Name        string          `json:"name"`
	Client      string          `json:"client"`
	ClientID    string          `json:"client_id"`
	ClientEmail string          `json:"client_email,omitempty"`
	Description string          `json:"description,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	FolderURL   string          `json:"folder_url,omitempty"`
	DeliveryURL string          `json:"delivery_url,omitempty"`
	Progress    int             `json:"progress"`
	CurrentStep *workflow.Step  `json:"current_step,omitempty"`
	Steps       []workflow.Step `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
}

type ProjectSummary struct {
	ID          string    `json:"project_id"`
	Name        string    `json:"name"`
	Client      string    `json:"client"`
	ClientID    string    `json:"client_id"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type StepMutationResponse struct {
	ProjectID     string               `json:"project_id"`
	Changed       bool                 `json:"changed"`
	Step          *workflow.Step       `json:"step,omitempty"`
	Steps         []workflow.Step      `json:"steps"`
	Progress      int                  `json:"progress"`
	CurrentStep   *workflow.Step       `json:"current_step,omitempty"`
	NewMilestones []workflow.Milestone `json:"new_milestones"`
}

type MilestoneRecordResponse struct {
	ID         string    `json:"id"`
	AchievedAt time.Time `json:"achieved_at"`
}

type MilestonesResponse struct {
	ProjectID string                    `json:"project_id"`
	Progress  int                       `json:"progress"`
	Achieved  []workflow.Milestone      `json:"achieved"`
	Next      *workflow.Milestone       `json:"next,omitempty"`
	Records   []MilestoneRecordResponse `json:"records"`
}

type MemberResponse struct {
	ID        string    `json:"member_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberListResponse struct {
	Members []MemberResponse `json:"members"`
}

type AssignmentResponse struct {
	ID            string     `json:"assignment_id"`
	ProjectID     string     `json:"project_id"`
	StepOrder     int        `json:"step_order"`
	WorkerID      string     `json:"worker_id"`
	DirectorID    string     `json:"director_id,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Status        string     `json:"status"`
	ReviewComment string     `json:"review_comment,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type AssignmentListResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
}

type DeliverableResponse struct {
	ProjectID   string `json:"project_id"`
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	DeliveryURL string `json:"delivery_url"`
}

// PortalProjectResponse is the client-facing view: no internal links or
// staff metadata.
type PortalProjectResponse struct {
	ID          string               `json:"project_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	DueDate     *time.Time           `json:"due_date,omitempty"`
	DeliveryURL string               `json:"delivery_url,omitempty"`
	Progress    int                  `json:"progress"`
	CurrentStep *workflow.Step       `json:"current_step,omitempty"`
	Steps       []workflow.Step      `json:"steps"`
	Milestones  []workflow.Milestone `json:"milestones"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type PortalProjectListResponse struct {
	ClientID string                  `json:"client_id"`
	Projects []PortalProjectResponse `json:"projects"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
