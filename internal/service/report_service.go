package service

import (
	"context"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/planner"
)

// ReportService renders plans as HTML messages for Telegram and the CLI.
type ReportService struct {
	planner *PlannerService
}

func NewReportService(planner *PlannerService) *ReportService {
	return &ReportService{planner: planner}
}

// DailySummary builds today's plan for userID and renders it.
func (s *ReportService) DailySummary(ctx context.Context, userID uuid.UUID) (string, error) {
	plan, err := s.planner.GetDailyPlan(ctx, userID, s.planner.Today(), nil)
	if err != nil {
		return "", err
	}
	return DailyPlanText(plan, s.planner.Location()), nil
}

// DailyPlanText renders a plan; times are shown in loc.
func DailyPlanText(plan *planner.Plan, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var builder strings.Builder
	builder.WriteString("📋 <b>Study plan</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s · %s of %s min\n\n", plan.Date, formatMinutes(plan.UsedMinutes), formatMinutes(plan.BudgetMinutes)))

	builder.WriteString("🔥 <b>Scheduled</b>\n")
	if len(plan.Scheduled) == 0 {
		builder.WriteString("— nothing fits today\n")
	}
	for _, occ := range plan.Scheduled {
		builder.WriteString(formatOccurrence(occ, loc))
	}

	if len(plan.Deferred) > 0 {
		builder.WriteString("\n⏭ <b>Deferred</b>\n")
		for _, occ := range plan.Deferred {
			builder.WriteString(formatOccurrence(occ, loc))
		}
	}

	builder.WriteString(fmt.Sprintf("\n⌛ Free: %s min", formatMinutes(plan.RemainingMinutes)))
	return builder.String()
}

func formatOccurrence(occ planner.Occurrence, loc *time.Location) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case occ.Overdue:
		icon = "⚠️"
	case occ.Task.IsRecurring():
		icon = "♻️"
	case occ.EffectivePriority > int(occ.Tier):
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(occ.Task.Title))))
	sb.WriteString(fmt.Sprintf(" <i>(%s, %s min)</i>", occ.Tier, formatMinutes(occ.Minutes)))

	due := occ.Due.In(loc)
	if occ.Overdue {
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · <b>overdue</b>", due.Format("2006-01-02 15:04")))
	} else {
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", due.Format("15:04")))
	}
	sb.WriteString(fmt.Sprintf("\n   🆔 <code>%s</code>", occ.Task.ID))

	sb.WriteByte('\n')
	return sb.String()
}

func formatMinutes(v float64) string {
	return fmt.Sprintf("%d", int(math.Round(v)))
}
