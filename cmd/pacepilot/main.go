package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nidhi752/pacepilot-os/internal/app"
	"github.com/nidhi752/pacepilot-os/internal/bot"
	"github.com/nidhi752/pacepilot-os/internal/config"
	"github.com/nidhi752/pacepilot-os/internal/httpapi"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configDir string
	output    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "pacepilot",
		Short:         "Adaptive study scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory holding the .env file")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text|json|yaml")

	root.AddCommand(newPlanCmd(opts))
	root.AddCommand(newCompleteCmd(opts))
	root.AddCommand(newTaskCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newBotCmd(opts))
	return root
}

func loadApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func parseUser(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--user must be a UUID: %w", err)
	}
	return id, nil
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var userID, date string
	var budget int

	cmd := &cobra.Command{
		Use:   "plan --user <id>",
		Short: "Show the study plan for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUser(userID)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if date == "" {
				date = a.Planner.Today()
			}
			var override *int
			if cmd.Flags().Changed("budget") {
				override = &budget
			}
			plan, err := a.Planner.GetDailyPlan(cmd.Context(), user, date, override)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, plan, func() string {
				return planText(plan, a.Location)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&date, "date", "", "day to plan, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&budget, "budget", 0, "minutes available, overrides the configured budget")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCompleteCmd(opts *rootOptions) *cobra.Command {
	var userID, taskID, date string
	var minutes int

	cmd := &cobra.Command{
		Use:   "complete --user <id> --task <id> --date YYYY-MM-DD --minutes N",
		Short: "Record a finished occurrence and show the refreshed plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUser(userID)
			if err != nil {
				return err
			}
			task, err := uuid.Parse(taskID)
			if err != nil {
				return fmt.Errorf("--task must be a UUID: %w", err)
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if date == "" {
				date = a.Planner.Today()
			}
			plan, err := a.Planner.CompleteOccurrence(cmd.Context(), service.CompleteInput{
				UserID:         user,
				TaskID:         task,
				OccurrenceDate: date,
				ActualMinutes:  minutes,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, plan, func() string {
				return planText(plan, a.Location)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&date, "date", "", "occurrence date, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "minutes actually spent, 0 if not tracked")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newTaskCmd(opts *rootOptions) *cobra.Command {
	taskCmd := &cobra.Command{Use: "task", Short: "Manage task templates"}

	var userID, title, description, course, topic, rrule, due string
	var priority, estimate int
	add := &cobra.Command{
		Use:   "add --user <id> --title <title>",
		Short: "Add a one-off or recurring task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUser(userID)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			input := service.TaskInput{
				Title:       title,
				Description: description,
				Course:      course,
				Topic:       topic,
				RRule:       rrule,
				Priority:    priority,
			}
			if cmd.Flags().Changed("estimate") {
				input.EstimatedMinutes = &estimate
			}
			if due != "" {
				dueAt, err := service.ParseDue(due, a.Location)
				if err != nil {
					return err
				}
				input.DueAt = &dueAt
			}
			task, err := a.Tasks.CreateTask(cmd.Context(), user, input)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, task, func() string {
				return fmt.Sprintf("created %s %q", task.ID, task.Title)
			})
		},
	}
	add.Flags().StringVar(&userID, "user", "", "user id")
	add.Flags().StringVar(&title, "title", "", "task title")
	add.Flags().StringVar(&description, "description", "", "free text")
	add.Flags().StringVar(&course, "course", "", "course code, created on first use")
	add.Flags().StringVar(&topic, "topic", "", "estimation topic")
	add.Flags().StringVar(&rrule, "rrule", "", "recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO,WE")
	add.Flags().StringVar(&due, "due", "", "due instant or recurrence anchor: RFC3339, YYYY-MM-DD HH:MM or YYYY-MM-DD")
	add.Flags().IntVar(&priority, "priority", 0, "1 low, 2 medium, 3 high")
	add.Flags().IntVar(&estimate, "estimate", 0, "estimated minutes")
	_ = add.MarkFlagRequired("user")
	_ = add.MarkFlagRequired("title")

	var listUser string
	list := &cobra.Command{
		Use:   "list --user <id>",
		Short: "List a user's tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUser(listUser)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			tasks, err := a.Tasks.ListTasks(cmd.Context(), user)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, tasks, func() string {
				return tasksText(tasks, a.Location)
			})
		},
	}
	list.Flags().StringVar(&listUser, "user", "", "user id")
	_ = list.MarkFlagRequired("user")

	var cancelUser, cancelTask string
	cancel := &cobra.Command{
		Use:   "cancel --user <id> --task <id>",
		Short: "Cancel a task so it is no longer planned",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUser(cancelUser)
			if err != nil {
				return err
			}
			task, err := uuid.Parse(cancelTask)
			if err != nil {
				return fmt.Errorf("--task must be a UUID: %w", err)
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			cancelled, err := a.Tasks.CancelTask(cmd.Context(), user, task)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, cancelled, func() string {
				return fmt.Sprintf("cancelled %s %q", cancelled.ID, cancelled.Title)
			})
		},
	}
	cancel.Flags().StringVar(&cancelUser, "user", "", "user id")
	cancel.Flags().StringVar(&cancelTask, "task", "", "task id")
	_ = cancel.MarkFlagRequired("user")
	_ = cancel.MarkFlagRequired("task")

	taskCmd.AddCommand(add, list, cancel)
	return taskCmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats --user <id>",
		Short: "Show estimation accuracy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := parseUser(userID)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.Planner.Stats(cmd.Context(), user)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, stats, func() string {
				return statsText(stats)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := httpapi.NewHandler(a.Log, a.Planner, a.Tasks)
			srv := &http.Server{
				Addr:              a.Config.HTTPAddr,
				Handler:           httpapi.NewRouter(a.Log, handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.Log.Info("http server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil {
				return err
			}
			a.Log.Info("shutdown complete")
			return nil
		},
	}
}

func newBotCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with scheduled daily plans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Config.RequireTelegram(); err != nil {
				return err
			}

			telegramBot, err := bot.New(a.Config.TelegramToken, a.Log, a.Repos.Users, a.Planner, a.Tasks, a.Reports)
			if err != nil {
				return err
			}

			scheduler := service.NewSchedulerService(a.Location, a.Log)
			if a.Config.ReportTime != "" {
				if _, err := scheduler.ScheduleDaily("daily-plan", a.Config.ReportTime, telegramBot.SendDailyReports); err != nil {
					return fmt.Errorf("schedule reports: %w", err)
				}
			}
			if a.Config.ReportInterval > 0 {
				if _, err := scheduler.ScheduleInterval("plan-refresh", a.Config.ReportInterval, telegramBot.SendDailyReports); err != nil {
					return fmt.Errorf("schedule reports: %w", err)
				}
			}
			scheduler.Start()
			defer scheduler.Stop()

			a.Log.Info("study bot started")
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bot stopped with error: %w", err)
			}
			a.Log.Info("shutdown complete")
			return nil
		},
	}
}
