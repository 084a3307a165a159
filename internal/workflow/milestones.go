package workflow

import (
	"math"
	"time"
)

// ProjectState is the input to milestone predicates. Now is used as the
// completion time when completed steps carry no timestamp; zero means
// time.Now.
type ProjectState struct {
	CreatedAt time.Time
	Steps     []Step
	Now       time.Time
}

type Milestone struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`

	achieved func(ProjectState) bool
}

const day = 24 * time.Hour

var milestones = []Milestone{
	{
		ID: "project_start", Name: "プロジェクト開始", Icon: "🚀",
		Description: "新しい挑戦が始まりました",
		achieved:    func(ProjectState) bool { return true },
	},
	{
		ID: "first_step", Name: "最初の一歩", Icon: "👣",
		Description: "最初のステップを完了しました",
		achieved:    func(p ProjectState) bool { return CompletedCount(p.Steps) >= 1 },
	},
	{
		ID: "quarter_done", Name: "25%達成", Icon: "🌟",
		Description: "4分の1が完了しました",
		achieved:    progressAtLeast(25),
	},
	{
		ID: "halfway", Name: "折り返し地点", Icon: "🎯",
		Description: "半分が完了しました！",
		achieved:    progressAtLeast(50),
	},
	{
		ID: "three_quarters", Name: "75%達成", Icon: "🔥",
		Description: "あと少しです！",
		achieved:    progressAtLeast(75),
	},
	{
		ID: "project_complete", Name: "プロジェクト完了", Icon: "🏆",
		Description: "素晴らしい成果です！",
		achieved:    func(p ProjectState) bool { return AllCompleted(p.Steps) },
	},
	{
		ID: "speed_demon", Name: "スピード制作", Icon: "⚡",
		Description: "7日以内に完了しました",
		achieved: func(p ProjectState) bool {
			days, ok := daysToComplete(p)
			return ok && days <= 7
		},
	},
	{
		ID: "marathon_runner", Name: "マラソンランナー", Icon: "🏃",
		Description: "30日以上の長期プロジェクトを完了",
		achieved: func(p ProjectState) bool {
			days, ok := daysToComplete(p)
			return ok && days >= 30
		},
	},
}

func progressAtLeast(pct int) func(ProjectState) bool {
	return func(p ProjectState) bool { return ProgressPercentage(p.Steps) >= pct }
}

// daysToComplete is only defined for fully completed projects.
func daysToComplete(p ProjectState) (int, bool) {
	if !AllCompleted(p.Steps) {
		return 0, false
	}
	end, ok := CompletionDate(p.Steps)
	if !ok {
		end = p.Now
		if end.IsZero() {
			end = time.Now()
		}
	}
	return int(math.Ceil(float64(end.Sub(p.CreatedAt)) / float64(day))), true
}

// Milestones returns the definitions in evaluation order.
func Milestones() []Milestone {
	out := make([]Milestone, len(milestones))
	copy(out, milestones)
	return out
}

func Achieved(p ProjectState) []Milestone {
	var out []Milestone
	for _, m := range milestones {
		if m.achieved(p) {
			out = append(out, m)
		}
	}
	return out
}

// Next returns the first milestone in definition order not yet achieved.
func Next(p ProjectState) (Milestone, bool) {
	for _, m := range milestones {
		if !m.achieved(p) {
			return m, true
		}
	}
	return Milestone{}, false
}

// EvaluateMilestones reports milestones achieved now whose ids are not in
// previouslySeen, in definition order.
func EvaluateMilestones(p ProjectState, previouslySeen []string) []Milestone {
	seen := make(map[string]struct{}, len(previouslySeen))
	for _, id := range previouslySeen {
		seen[id] = struct{}{}
	}

	var fresh []Milestone
	for _, m := range Achieved(p) {
		if _, ok := seen[m.ID]; !ok {
			fresh = append(fresh, m)
		}
	}
	return fresh
}

// Lookup returns the definitions of the given ids in definition order.
// Unknown ids are ignored.
func Lookup(ids []string) []Milestone {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Milestone
	for _, m := range milestones {
		if _, ok := want[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}
