package models

import "time"

type StepRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

type CreateProjectRequest struct {
	Name        string     `json:"name" binding:"required"`
	Client      string     `json:"client" binding:"required"`
	ClientEmail string     `json:"client_email,omitempty"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	FolderURL   string     `json:"folder_url,omitempty"`
	// Optional custom step list; the default seven steps are used when empty.
	Steps []StepRequest `json:"steps,omitempty"`
}

// UpdateProjectRequest carries only the fields being changed.
type UpdateProjectRequest struct {
	Name         *string    `json:"name,omitempty"`
	Client       *string    `json:"client,omitempty"`
	ClientEmail  *string    `json:"client_email,omitempty"`
	Description  *string    `json:"description,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	FolderURL    *string    `json:"folder_url,omitempty"`
	DeliveryURL  *string    `json:"delivery_url,omitempty"`
}

type AddStepRequest struct {
	StepRequest
	// 0-based index of the step to insert before; appended when omitted.
	InsertAt *int `json:"insert_at,omitempty"`
}

type SetStepStatusRequest struct {
	Status string `json:"status" binding:"required" example:"current"`
}

type MoveStepRequest struct {
	Direction string `json:"direction" binding:"required" example:"up"`
}

type CreateMemberRequest struct {
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required"`
	Role   string `json:"role" binding:"required" example:"worker"`
	// Auth user id (JWT sub) of the person behind this member.
	UserID string `json:"user_id,omitempty"`
}

type CreateAssignmentRequest struct {
	StepOrder  int        `json:"step_order" binding:"required"`
	WorkerID   string     `json:"worker_id" binding:"required"`
	DirectorID string     `json:"director_id,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

type UpdateAssignmentStatusRequest struct {
	Status  string `json:"status" binding:"required" example:"submitted"`
	Comment string `json:"comment,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
