package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"progress-tracker-backend/internal/workflow"
)

type Member struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      workflow.Role
	// UserID links the member to the JWT subject of their account.
	UserID    uuid.NullUUID
	CreatedAt time.Time
}

type Assignment struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	StepOrder     int
	WorkerID      uuid.UUID
	DirectorID    uuid.NullUUID
	DueDate       sql.NullTime
	Notes         string
	Status        workflow.AssignmentStatus
	ReviewComment sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
