package workflow

import "fmt"

type Role string

const (
	RoleMaster   Role = "master"
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleWorker   Role = "worker"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMaster, RoleAdmin, RoleDirector, RoleWorker:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// AssignmentStatus tracks a worker's task on one step. It runs alongside
// the step status; approving a submission does not complete the step.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentSubmitted  AssignmentStatus = "submitted"
	AssignmentApproved   AssignmentStatus = "approved"
)

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentPending:    {AssignmentInProgress},
	AssignmentInProgress: {AssignmentSubmitted},
	// back to in_progress is a rejection
	AssignmentSubmitted: {AssignmentApproved, AssignmentInProgress},
	AssignmentApproved:  nil,
}

func ParseAssignmentStatus(s string) (AssignmentStatus, error) {
	if _, ok := assignmentTransitions[AssignmentStatus(s)]; ok {
		return AssignmentStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown assignment status %q", ErrValidation, s)
}

func (s AssignmentStatus) CanTransitionTo(next AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionAssignment validates moving an assignment from one status to
// another.
func TransitionAssignment(from, to AssignmentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: assignment cannot move from %s to %s", ErrInvalidOperation, from, to)
	}
	return nil
}

// CanReview reports whether the role may approve or reject submissions.
func (r Role) CanReview() bool {
	return r == RoleMaster || r == RoleAdmin || r == RoleDirector
}
