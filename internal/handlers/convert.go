package handlers

import (
	"database/sql"
	"time"

	"progress-tracker-backend/internal/models"
	"progress-tracker-backend/internal/services"
	"progress-tracker-backend/internal/workflow"
)

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nonNilSteps(steps []workflow.Step) []workflow.Step {
	if steps == nil {
		return []workflow.Step{}
	}
	return steps
}

func nonNilMilestones(ms []workflow.Milestone) []workflow.Milestone {
	if ms == nil {
		return []workflow.Milestone{}
	}
	return ms
}

func currentStep(steps []workflow.Step) *workflow.Step {
	if current, ok := workflow.CurrentStep(steps); ok {
		return &current
	}
	return nil
}

func toProjectResponse(p *models.Project) models.ProjectResponse {
	return models.ProjectResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Client:      p.ClientName,
		ClientID:    p.ClientID,
		ClientEmail: p.ClientEmail.String,
		Description: p.Description,
		DueDate:     timePtr(p.DueDate),
		FolderURL:   p.FolderURL.String,
		DeliveryURL: p.DeliveryURL.String,
		Progress:    workflow.ProgressPercentage(p.Steps),
		CurrentStep: currentStep(p.Steps),
		Steps:       nonNilSteps(p.Steps),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toProjectSummary(p models.Project) models.ProjectSummary {
	summary := models.ProjectSummary{
		ID:        p.ID.String(),
		Name:      p.Name,
		Client:    p.ClientName,
		ClientID:  p.ClientID,
		Progress:  workflow.ProgressPercentage(p.Steps),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if current := currentStep(p.Steps); current != nil {
		summary.CurrentStep = current.Name
	}
	return summary
}

func toStepMutationResponse(res *services.StepMutationResult) models.StepMutationResponse {
	return models.StepMutationResponse{
		ProjectID:     res.Project.ID.String(),
		Changed:       res.Changed,
		Step:          res.Step,
		Steps:         nonNilSteps(res.Steps),
		Progress:      res.Progress,
		CurrentStep:   res.CurrentStep,
		NewMilestones: nonNilMilestones(res.NewMilestones),
	}
}

func toMilestonesResponse(o *services.MilestoneOverview) models.MilestonesResponse {
	records := make([]models.MilestoneRecordResponse, len(o.Records))
	for i, r := range o.Records {
		records[i] = models.MilestoneRecordResponse{ID: r.MilestoneID, AchievedAt: r.AchievedAt}
	}
	return models.MilestonesResponse{
		ProjectID: o.Project.ID.String(),
		Progress:  workflow.ProgressPercentage(o.Project.Steps),
		Achieved:  nonNilMilestones(o.Achieved),
		Next:      o.Next,
		Records:   records,
	}
}

func toMemberResponse(m *models.Member) models.MemberResponse {
	resp := models.MemberResponse{
		ID:        m.ID.String(),
		Name:      m.Name,
		Email:     m.Email,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
	if m.UserID.Valid {
		resp.UserID = m.UserID.UUID.String()
	}
	return resp
}

func toAssignmentResponse(a *models.Assignment) models.AssignmentResponse {
	resp := models.AssignmentResponse{
		ID:            a.ID.String(),
		ProjectID:     a.ProjectID.String(),
		StepOrder:     a.StepOrder,
		WorkerID:      a.WorkerID.String(),
		DueDate:       timePtr(a.DueDate),
		Notes:         a.Notes,
		Status:        string(a.Status),
		ReviewComment: a.ReviewComment.String,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.DirectorID.Valid {
		resp.DirectorID = a.DirectorID.UUID.String()
	}
	return resp
}

// toPortalProject drops staff-only fields. milestones are the recorded
// achievements.
func toPortalProject(p *models.Project, records []models.MilestoneRecord) models.PortalProjectResponse {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.MilestoneID
	}
	return models.PortalProjectResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		DueDate:     timePtr(p.DueDate),
		DeliveryURL: p.DeliveryURL.String,
		Progress:    workflow.ProgressPercentage(p.Steps),
		CurrentStep: currentStep(p.Steps),
		Steps:       nonNilSteps(p.Steps),
		Milestones:  nonNilMilestones(workflow.Lookup(ids)),
		UpdatedAt:   p.UpdatedAt,
	}
}
