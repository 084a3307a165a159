package workflow

import (
	"fmt"
	"strings"
	"time"
)

// Engine applies step mutations to an in-memory snapshot. It holds no
// project state; every call takes the steps it works on and returns a new
// slice, leaving the input untouched.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return NewEngineWithClock(func() time.Time { return time.Now().UTC() })
}

func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// SetStepStatus sets the status of the step at order and cascades:
// every earlier step is completed when the target becomes current or
// completed, and every later step is reset to pending when the target
// becomes current. Completion timestamps already set are never overwritten.
func (e *Engine) SetStepStatus(steps []Step, order int, status Status) ([]Step, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	idx := indexOf(steps, order)
	if idx < 0 {
		return nil, fmt.Errorf("%w: step %d", ErrNotFound, order)
	}

	now := e.now()
	out := clone(steps)

	target := &out[idx]
	if status == StatusCompleted {
		if target.Status != StatusCompleted || target.CompletedAt == nil {
			target.CompletedAt = &now
		}
	} else {
		target.CompletedAt = nil
	}
	target.Status = status

	if status == StatusCompleted || status == StatusCurrent {
		for i := range out {
			if out[i].Order >= order || out[i].Status == StatusCompleted {
				continue
			}
			out[i].Status = StatusCompleted
			if out[i].CompletedAt == nil {
				t := now
				out[i].CompletedAt = &t
			}
		}
	}

	if status == StatusCurrent {
		for i := range out {
			if out[i].Order > order {
				out[i].Status = StatusPending
				out[i].CompletedAt = nil
			}
		}
	}

	return out, nil
}

// AddStep inserts a pending step before the step at the 0-based index
// insertAt, or appends it when insertAt is nil or out of range.
func (e *Engine) AddStep(steps []Step, in StepInput, insertAt *int) ([]Step, Step, error) {
	if err := in.Validate(); err != nil {
		return nil, Step{}, err
	}

	step := Step{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		URL:         strings.TrimSpace(in.URL),
		DueDate:     copyTime(in.DueDate),
		Status:      StatusPending,
	}

	out := Normalize(steps)
	pos := len(out)
	if insertAt != nil && *insertAt >= 0 && *insertAt < len(out) {
		pos = *insertAt
	}

	out = append(out, Step{})
	copy(out[pos+1:], out[pos:])
	out[pos] = step
	renumber(out)

	return out, out[pos], nil
}

// UpdateStep replaces the editable content of a step. Status and
// completion time are left alone.
func (e *Engine) UpdateStep(steps []Step, order int, in StepInput) ([]Step, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	idx := indexOf(steps, order)
	if idx < 0 {
		return nil, fmt.Errorf("%w: step %d", ErrNotFound, order)
	}

	out := clone(steps)
	out[idx].Name = strings.TrimSpace(in.Name)
	out[idx].Description = strings.TrimSpace(in.Description)
	out[idx].URL = strings.TrimSpace(in.URL)
	out[idx].DueDate = copyTime(in.DueDate)
	return out, nil
}

// DeleteStep removes the step at order and closes the gap. If the removed
// step was the current one, the first pending step takes its place so the
// project keeps a frontier.
func (e *Engine) DeleteStep(steps []Step, order int) ([]Step, error) {
	if len(steps) <= 1 {
		return nil, fmt.Errorf("%w: a project must keep at least one step", ErrInvalidOperation)
	}
	idx := indexOf(steps, order)
	if idx < 0 {
		return nil, fmt.Errorf("%w: step %d", ErrNotFound, order)
	}

	removed := steps[idx]
	out := make([]Step, 0, len(steps)-1)
	for i, s := range clone(steps) {
		if i != idx {
			out = append(out, s)
		}
	}
	out = Normalize(out)

	if removed.Status == StatusCurrent {
		if _, ok := find(out, StatusCurrent); !ok {
			if i, ok := find(out, StatusPending); ok {
				out[i].Status = StatusCurrent
			}
		}
	}

	return out, nil
}

// ReorderStep swaps the step at order with its neighbour in the given
// direction. Moving the first step up or the last step down leaves the
// list unchanged and reports changed=false.
func (e *Engine) ReorderStep(steps []Step, order int, dir Direction) ([]Step, bool, error) {
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, false, err
	}
	out := Normalize(steps)
	idx := indexOf(out, order)
	if idx < 0 {
		return nil, false, fmt.Errorf("%w: step %d", ErrNotFound, order)
	}

	other := idx - 1
	if dir == DirectionDown {
		other = idx + 1
	}
	if other < 0 || other >= len(out) {
		return out, false, nil
	}

	out[idx], out[other] = out[other], out[idx]
	renumber(out)
	return out, true, nil
}

func find(steps []Step, status Status) (int, bool) {
	for i, s := range steps {
		if s.Status == status {
			return i, true
		}
	}
	return -1, false
}
