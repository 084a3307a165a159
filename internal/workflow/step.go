package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCurrent   Status = "current"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusCurrent, StatusCompleted:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: unknown step status %q", ErrValidation, s)
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrValidation, s)
}

// Step is one ordered unit of work. Order is the 1-based position within
// the project and is rewritten whenever steps are inserted, removed or moved.
type Step struct {
	Order       int        `json:"order"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type StepInput struct {
	Name        string
	Description string
	URL         string
	DueDate     *time.Time
}

func (in StepInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: step name is required", ErrValidation)
	}
	return nil
}

var defaultStepNames = []string{
	"ヒアリング・要件定義",
	"企画・コンセプト設計",
	"デザイン制作",
	"制作・開発",
	"レビュー・修正",
	"最終確認",
	"納品完了",
}

// DefaultSteps returns the step list a project starts with when no custom
// list is supplied.
func DefaultSteps() []Step {
	steps := make([]Step, len(defaultStepNames))
	for i, name := range defaultStepNames {
		steps[i] = Step{Order: i + 1, Name: name, Status: StatusPending}
	}
	return steps
}

// Normalize returns a copy sorted by Order with orders renumbered 1..N.
func Normalize(steps []Step) []Step {
	out := clone(steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	renumber(out)
	return out
}

func clone(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		out[i] = s
		out[i].DueDate = copyTime(s.DueDate)
		out[i].CompletedAt = copyTime(s.CompletedAt)
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func renumber(steps []Step) {
	for i := range steps {
		steps[i].Order = i + 1
	}
}

func indexOf(steps []Step, order int) int {
	for i, s := range steps {
		if s.Order == order {
			return i
		}
	}
	return -1
}

// Equal reports whether two snapshots hold the same steps in the same order.
func Equal(a, b []Step) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Order != y.Order || x.Name != y.Name || x.Description != y.Description ||
			x.URL != y.URL || x.Status != y.Status ||
			!sameTime(x.DueDate, y.DueDate) || !sameTime(x.CompletedAt, y.CompletedAt) {
			return false
		}
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
