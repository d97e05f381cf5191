package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/planner"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

// render writes v as JSON or YAML, or calls text for the default format.
func render(w io.Writer, format string, v any, text func() string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		_, err := fmt.Fprintln(w, text())
		return err
	default:
		return fmt.Errorf("unknown output format %q, want text, json or yaml", format)
	}
}

var htmlTag = regexp.MustCompile(`</?[a-z]+>`)

// planText reuses the chat rendering without its markup.
func planText(plan *planner.Plan, loc *time.Location) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(service.DailyPlanText(plan, loc), ""))
}

func tasksText(tasks []model.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return "no tasks"
	}
	var sb strings.Builder
	for _, task := range tasks {
		due := "-"
		if task.DueAt != nil {
			due = task.DueAt.In(loc).Format("2006-01-02 15:04")
		}
		rule := task.RRule
		if rule == "" {
			rule = "-"
		}
		sb.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s\n", task.ID, task.Status, task.Priority, due, rule, task.Title))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func statsText(stats *service.StudyStats) string {
	return fmt.Sprintf("sessions: %d\npredicted: %.0f min\nactual: %.0f min\nmean error: %.1f min\nvelocity: %.2f",
		stats.Count, stats.TotalPredicted, stats.TotalActual, stats.MeanAbsoluteError, stats.LearningVelocity)
}
