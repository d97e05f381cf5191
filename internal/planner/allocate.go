package planner

import (
	"math"
	"sort"
	"time"

	"github.com/nidhi752/pacepilot-os/internal/model"
)

// UrgentWithin is how close a due instant must be to get the urgency boost.
const UrgentWithin = 24 * time.Hour

// Occurrence is one dated instance of a task. It is computed on demand and never stored.
type Occurrence struct {
	Task              model.Task     `json:"task" yaml:"task"`
	Due               time.Time      `json:"due" yaml:"due"`
	Minutes           float64        `json:"predicted_minutes" yaml:"predicted_minutes"`
	Tier              model.Priority `json:"tier" yaml:"tier"`
	EffectivePriority int            `json:"effective_priority" yaml:"effective_priority"`
	Overdue           bool           `json:"overdue" yaml:"overdue"`
}

// Plan is the allocator output for one day.
type Plan struct {
	Date             string       `json:"date" yaml:"date"`
	BudgetMinutes    float64      `json:"budget_minutes" yaml:"budget_minutes"`
	UsedMinutes      float64      `json:"used_minutes" yaml:"used_minutes"`
	RemainingMinutes float64      `json:"remaining_minutes" yaml:"remaining_minutes"`
	Scheduled        []Occurrence `json:"scheduled" yaml:"scheduled"`
	Deferred         []Occurrence `json:"deferred" yaml:"deferred"`
}

// EffectivePriority combines the tier with urgency: +1 when due within UrgentWithin.
// Overdue occurrences are ordered separately and ahead of everything else.
func EffectivePriority(task model.Task, due, now time.Time) int {
	prio := int(task.Priority.Tier())
	if left := due.Sub(now); left >= 0 && left < UrgentWithin {
		prio++
	}
	return prio
}

// Allocate orders occurrences and greedily fills the budget. An occurrence that does
// not fit the remaining budget is deferred and smaller ones later in the order may
// still be scheduled. The result depends only on the arguments.
func Allocate(occurrences []Occurrence, p Profile, budgetMinutes float64, now time.Time) Plan {
	ranked := make([]Occurrence, len(occurrences))
	for i, occ := range occurrences {
		occ.Minutes = Predict(occ.Task, p)
		occ.Tier = occ.Task.Priority.Tier()
		occ.Overdue = occ.Due.Before(now)
		occ.EffectivePriority = EffectivePriority(occ.Task, occ.Due, now)
		ranked[i] = occ
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranks(ranked[i], ranked[j])
	})

	plan := Plan{
		BudgetMinutes: budgetMinutes,
		Scheduled:     []Occurrence{},
		Deferred:      []Occurrence{},
	}
	for _, occ := range ranked {
		if plan.UsedMinutes+occ.Minutes <= budgetMinutes {
			plan.Scheduled = append(plan.Scheduled, occ)
			plan.UsedMinutes += occ.Minutes
			continue
		}
		plan.Deferred = append(plan.Deferred, occ)
	}
	plan.RemainingMinutes = math.Max(0, budgetMinutes-plan.UsedMinutes)
	return plan
}

// ranks reports whether a goes before b: overdue first, then effective priority,
// then soonest due, then task id.
func ranks(a, b Occurrence) bool {
	if a.Overdue != b.Overdue {
		return a.Overdue
	}
	if a.EffectivePriority != b.EffectivePriority {
		return a.EffectivePriority > b.EffectivePriority
	}
	if !a.Due.Equal(b.Due) {
		return a.Due.Before(b.Due)
	}
	return a.Task.ID.String() < b.Task.ID.String()
}
