package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/nidhi752/pacepilot-os/internal/apperr"
	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/model"
	"github.com/nidhi752/pacepilot-os/internal/repository"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

const (
	cbDonePrefix   = "done:"
	cbCancelPrefix = "cancel:"
)

const (
	menuLabelPlan  = "📋 Plan"
	menuLabelTasks = "🗂 Tasks"
	menuLabelStats = "📈 Stats"
	menuLabelHelp  = "ℹ️ Help"
)

// pendingCompletion waits for the user to type the minutes they spent.
type pendingCompletion struct {
	taskID uuid.UUID
	date   string
}

// Bot connects the Telegram API with the planner services.
type Bot struct {
	api      *tgbotapi.BotAPI
	log      *logger.Logger
	users    *repository.UserRepository
	planner  *service.PlannerService
	tasks    *service.TaskService
	reports  *service.ReportService
	pending  map[int64]pendingCompletion
	mu       sync.Mutex
	location *time.Location
}

func New(token string, log *logger.Logger, users *repository.UserRepository, planner *service.PlannerService, tasks *service.TaskService, reports *service.ReportService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log = log.With("component", "bot")
	log.Info("bot authorized", "account", api.Self.UserName)

	return &Bot{
		api:      api,
		log:      log,
		users:    users,
		planner:  planner,
		tasks:    tasks,
		reports:  reports,
		pending:  make(map[int64]pendingCompletion),
		location: planner.Location(),
	}, nil
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", "error", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", "error", err)
			}
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if msg.IsCommand() {
		b.log.Debug("command", "from", msg.From.ID, "command", msg.Command(), "args", msg.CommandArguments())
		b.clearPending(msg.From.ID)
		return b.handleCommand(ctx, msg, msg.Command(), msg.CommandArguments())
	}

	switch strings.TrimSpace(msg.Text) {
	case menuLabelPlan:
		return b.handleCommand(ctx, msg, "plan", "")
	case menuLabelTasks:
		return b.handleCommand(ctx, msg, "tasks", "")
	case menuLabelStats:
		return b.handleCommand(ctx, msg, "stats", "")
	case menuLabelHelp:
		return b.handleCommand(ctx, msg, "help", "")
	}

	if pending, ok := b.getPending(msg.From.ID); ok {
		return b.finishPending(ctx, msg, pending)
	}
	return b.sendText(msg.Chat.ID, "I did not get that. Try /plan, /newtask or /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, command, args string) error {
	switch command {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "plan":
		return b.handlePlan(ctx, msg, args)
	case "done":
		return b.handleDone(ctx, msg, args)
	case "tasks":
		return b.handleTasks(ctx, msg)
	case "newtask":
		return b.handleNewTask(ctx, msg, args)
	case "stats":
		return b.handleStats(ctx, msg)
	case "cancel":
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /plan [YYYY-MM-DD] [budget] — today's study plan\n" +
	"• /done &lt;task-id&gt; &lt;YYYY-MM-DD&gt; &lt;minutes&gt; — record a finished session\n" +
	"• /tasks — open tasks\n" +
	"• /newtask title | minutes | priority | rrule or due — add a task\n" +
	"  e.g. <code>/newtask Flashcards | 20 | 3 | FREQ=DAILY</code>\n" +
	"• /stats — estimation accuracy\n" +
	"• /cancel — drop the pending input"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I plan your study day around the time you actually have.</b>\n\n%s", html.EscapeString(name), helpText)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handlePlan(ctx context.Context, msg *tgbotapi.Message, args string) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	date, budget, err := parsePlanArgs(args, b.planner.Today())
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	plan, err := b.planner.GetDailyPlan(ctx, user.ID, date, budget)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, service.DailyPlanText(plan, b.location))
	out.ParseMode = tgbotapi.ModeHTML
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, occ := range plan.Scheduled {
		data := fmt.Sprintf("%s%s:%s", cbDonePrefix, occ.Task.ID, occ.Due.In(b.location).Format(model.DateLayout))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(occ.Task.Title, 28), data),
		))
	}
	if len(rows) > 0 {
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message, args string) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	in, err := parseDoneArgs(args)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	in.UserID = user.ID
	return b.complete(ctx, msg.Chat.ID, in)
}

func (b *Bot) complete(ctx context.Context, chatID int64, in service.CompleteInput) error {
	plan, err := b.planner.CompleteOccurrence(ctx, in)
	if err != nil {
		return b.sendError(chatID, err)
	}
	b.log.Info("occurrence completed via bot", "user_id", in.UserID, "task_id", in.TaskID, "date", in.OccurrenceDate)
	text := fmt.Sprintf("✅ Logged %d min.\n\n%s", in.ActualMinutes, service.DailyPlanText(plan, b.location))
	return b.sendText(chatID, text)
}

func (b *Bot) handleTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tasks, err := b.tasks.ListTasks(ctx, user.ID)
	if err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, formatTaskList(tasks, b.location))
}

func (b *Bot) handleNewTask(ctx context.Context, msg *tgbotapi.Message, args string) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	input, err := parseNewTaskArgs(args, b.location)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	task, err := b.tasks.CreateTask(ctx, user.ID, input)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🆕 Task «%s» saved.\n🆔 <code>%s</code>", html.EscapeString(task.Title), task.ID))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	stats, err := b.planner.Stats(ctx, user.ID)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, formatStats(stats))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", "error", err)
	}

	switch {
	case strings.HasPrefix(cb.Data, cbDonePrefix):
		pending, err := parseDoneCallback(cb.Data)
		if err != nil {
			return nil
		}
		b.setPending(cb.From.ID, pending)
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("↩️ Cancel", cbCancelPrefix+pending.taskID.String()),
		))
		out := tgbotapi.NewMessage(cb.Message.Chat.ID, "⏱ How many minutes did it take? Send 0 if you did not track it.")
		out.ReplyMarkup = markup
		_, err = b.api.Send(out)
		return err
	case strings.HasPrefix(cb.Data, cbCancelPrefix):
		b.clearPending(cb.From.ID)
		return b.sendText(cb.Message.Chat.ID, "⏪ Cancelled.")
	default:
		return nil
	}
}

func (b *Bot) finishPending(ctx context.Context, msg *tgbotapi.Message, pending pendingCompletion) error {
	minutes, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || minutes < 0 {
		return b.sendText(msg.Chat.ID, "Please send a whole number of minutes, e.g. <code>35</code>.")
	}
	b.clearPending(msg.From.ID)
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.complete(ctx, msg.Chat.ID, service.CompleteInput{
		UserID:         user.ID,
		TaskID:         pending.taskID,
		OccurrenceDate: pending.date,
		ActualMinutes:  minutes,
	})
}

// SendDailyReports pushes today's plan to every Telegram user.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListTelegramUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reports.DailySummary(ctx, user.ID)
		if err != nil {
			b.log.Error("build daily report", "user_id", user.ID, "error", err)
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.log.Error("send daily report", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	name := strings.TrimSpace(strings.Join([]string{from.FirstName, from.LastName}, " "))
	if name == "" {
		name = from.UserName
	}
	return b.users.UpsertFromTelegram(ctx, from.ID, name)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

// sendError shows domain errors to the user; anything else is returned for logging.
func (b *Bot) sendError(chatID int64, err error) error {
	var (
		invalid    *apperr.InvalidInputError
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &validation):
		return b.sendText(chatID, "⚠️ "+html.EscapeString(err.Error()))
	case errors.As(err, &notFound):
		return b.sendText(chatID, "🔍 Task not found.")
	default:
		if sendErr := b.sendText(chatID, "Something went wrong, please try again later."); sendErr != nil {
			b.log.Warn("send error reply", "error", sendErr)
		}
		return err
	}
}

func (b *Bot) getPending(userID int64) (pendingCompletion, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[userID]
	return p, ok
}

func (b *Bot) setPending(userID int64, p pendingCompletion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[userID] = p
}

func (b *Bot) clearPending(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, userID)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelPlan),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelStats),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}
