package workflow

import (
	"math"
	"time"
)

// CurrentStep returns the step marked current, else the first pending
// step, else the last step. ok is false only for an empty list.
func CurrentStep(steps []Step) (Step, bool) {
	if len(steps) == 0 {
		return Step{}, false
	}
	if i, ok := find(steps, StatusCurrent); ok {
		return steps[i], true
	}
	if i, ok := find(steps, StatusPending); ok {
		return steps[i], true
	}
	return steps[len(steps)-1], true
}

func CompletedCount(steps []Step) int {
	n := 0
	for _, s := range steps {
		if s.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// ProgressPercentage is round(100 * completed / total), 0 for no steps.
func ProgressPercentage(steps []Step) int {
	if len(steps) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(CompletedCount(steps)) / float64(len(steps))))
}

func AllCompleted(steps []Step) bool {
	return len(steps) > 0 && CompletedCount(steps) == len(steps)
}

// CompletionDate is the latest CompletedAt across the steps.
func CompletionDate(steps []Step) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, s := range steps {
		if s.CompletedAt == nil {
			continue
		}
		if !found || s.CompletedAt.After(latest) {
			latest = *s.CompletedAt
			found = true
		}
	}
	return latest, found
}
