package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

// parsePlanArgs reads "[YYYY-MM-DD] [budget]" in any order.
func parsePlanArgs(args, today string) (string, *int, error) {
	date := today
	var budget *int
	for _, field := range strings.Fields(args) {
		if n, err := strconv.Atoi(field); err == nil {
			budget = &n
			continue
		}
		if _, err := time.Parse(model.DateLayout, field); err != nil {
			return "", nil, apperr.InvalidInput("date", fmt.Sprintf("expected YYYY-MM-DD or minutes, got %q", field))
		}
		date = field
	}
	return date, budget, nil
}

// parseDoneArgs reads "<task-id> <YYYY-MM-DD> <minutes>".
func parseDoneArgs(args string) (service.CompleteInput, error) {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return service.CompleteInput{}, apperr.InvalidInput("args", "usage: /done <task-id> <YYYY-MM-DD> <minutes>")
	}
	taskID, err := uuid.Parse(fields[0])
	if err != nil {
		return service.CompleteInput{}, apperr.InvalidInput("task_id", "must be a task id from /tasks")
	}
	minutes, err := strconv.Atoi(fields[2])
	if err != nil {
		return service.CompleteInput{}, apperr.InvalidInput("actual_minutes", "must be a whole number")
	}
	return service.CompleteInput{TaskID: taskID, OccurrenceDate: fields[1], ActualMinutes: minutes}, nil
}

func parseDoneCallback(data string) (pendingCompletion, error) {
	rest := strings.TrimPrefix(data, cbDonePrefix)
	rawID, date, ok := strings.Cut(rest, ":")
	if !ok {
		return pendingCompletion{}, fmt.Errorf("malformed callback %q", data)
	}
	taskID, err := uuid.Parse(rawID)
	if err != nil {
		return pendingCompletion{}, fmt.Errorf("malformed callback %q: %w", data, err)
	}
	return pendingCompletion{taskID: taskID, date: date}, nil
}

// parseNewTaskArgs reads "title | minutes | priority | rrule or due". Only the title
// is required; empty parts are skipped.
func parseNewTaskArgs(args string, loc *time.Location) (service.TaskInput, error) {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	input := service.TaskInput{Title: parts[0]}
	if len(parts) > 4 {
		return input, apperr.InvalidInput("args", "usage: /newtask title | minutes | priority | rrule or due")
	}
	if len(parts) > 1 && parts[1] != "" {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return input, apperr.InvalidInput("estimated_minutes", "must be a whole number")
		}
		input.EstimatedMinutes = &n
	}
	if len(parts) > 2 && parts[2] != "" {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return input, apperr.InvalidInput("priority", "must be 1, 2 or 3")
		}
		input.Priority = n
	}
	if len(parts) > 3 && parts[3] != "" {
		if strings.Contains(strings.ToUpper(parts[3]), "FREQ=") {
			// Recurring tasks are anchored at the next full hour.
			input.RRule = parts[3]
			anchor := time.Now().In(loc).Truncate(time.Hour).Add(time.Hour)
			input.DueAt = &anchor
		} else {
			due, err := service.ParseDue(parts[3], loc)
			if err != nil {
				return input, err
			}
			input.DueAt = &due
		}
	}
	return input, nil
}

func formatTaskList(tasks []model.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("🗂 <b>Open tasks</b>\n")
	open := 0
	for _, task := range tasks {
		if !task.IsOpen() {
			continue
		}
		open++
		icon := "🟢"
		if task.IsRecurring() {
			icon = "♻️"
		}
		sb.WriteString(fmt.Sprintf("%s %s <i>(%s)</i>", icon, html.EscapeString(task.Title), task.Priority))
		switch {
		case task.IsRecurring():
			sb.WriteString(fmt.Sprintf("\n   🔁 <code>%s</code>", html.EscapeString(task.RRule)))
		case task.DueAt != nil:
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", task.DueAt.In(loc).Format("2006-01-02 15:04")))
		}
		sb.WriteString(fmt.Sprintf("\n   🆔 <code>%s</code>\n", task.ID))
	}
	if open == 0 {
		sb.WriteString("— no open tasks, add one with /newtask\n")
	}
	return strings.TrimSpace(sb.String())
}

func formatStats(stats *service.StudyStats) string {
	var sb strings.Builder
	sb.WriteString("📈 <b>Estimation accuracy</b>\n")
	sb.WriteString(fmt.Sprintf("• tracked sessions: %d\n", stats.Count))
	sb.WriteString(fmt.Sprintf("• predicted / actual: %.0f / %.0f min\n", stats.TotalPredicted, stats.TotalActual))
	sb.WriteString(fmt.Sprintf("• mean error: %.1f min\n", stats.MeanAbsoluteError))
	sb.WriteString(fmt.Sprintf("• learning velocity: %.2f", stats.LearningVelocity))
	return sb.String()
}

func shortTitle(title string, maxLen int) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-1]) + "…"
}
