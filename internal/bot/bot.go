package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"garden-planner/internal/backup"
	"garden-planner/internal/model"
	"garden-planner/internal/photos"
	"garden-planner/internal/repository"
	"garden-planner/internal/resilience"
	"garden-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTaskPlant
	stageTaskKind
	stageTaskFrequency
	stageTaskDue
	stagePlantName
	stagePlantWater
)

// Telegram refuses downloads above 20 MB for bots.
const maxDownloadSize = 20 << 20

type conversationState struct {
	stage  conversationStage
	task   service.TaskInput
	plant  service.PlantInput
	plants map[string]string
}

type confirmationAction int

const (
	actionDeleteTask confirmationAction = iota
	actionDeletePlant
)

type confirmationRequest struct {
	id     string
	label  string
	action confirmationAction
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       *tgbotapi.BotAPI
	users     repository.UserStore
	tasks     *service.TaskService
	plants    *service.PlantService
	journal   *service.JournalService
	reminders *service.ReminderService
	backups   *backup.Service
	photos    *photos.Library
	logger    *log.Logger

	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	imports       map[int64]backup.Mode
	mu            sync.Mutex
}

// Services bundles what the bot needs besides the Telegram API.
type Services struct {
	Users     repository.UserStore
	Tasks     *service.TaskService
	Plants    *service.PlantService
	Journal   *service.JournalService
	Reminders *service.ReminderService
	Backups   *backup.Service
	Photos    *photos.Library
}

// New creates bot instance.
func New(token string, svc Services, logger *log.Logger) (*Bot, error) {
	if logger == nil {
		logger = log.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		users:         svc.Users,
		tasks:         svc.Tasks,
		plants:        svc.Plants,
		journal:       svc.Journal,
		reminders:     svc.Reminders,
		backups:       svc.Backups,
		photos:        svc.Photos,
		logger:        logger,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
		imports:       make(map[int64]backup.Mode),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.Document != nil {
		return b.handleDocument(ctx, msg)
	}
	if len(msg.Photo) > 0 {
		return b.handlePhoto(ctx, msg)
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		return b.cancelDialogs(ctx, msg)
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.logger.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /today, чтобы увидеть задачи на сегодня, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "today", "report":
		return b.handleToday(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "snooze":
		return b.handleSnooze(ctx, msg)
	case "skip":
		return b.handleSkip(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "plants":
		return b.handlePlants(ctx, msg)
	case "newplant":
		return b.startNewPlantConversation(ctx, msg)
	case "generate":
		return b.handleGenerate(ctx, msg)
	case "journal":
		return b.handleJournal(ctx, msg)
	case "note":
		return b.handleNote(ctx, msg)
	case "export":
		return b.handleExport(ctx, msg)
	case "import":
		return b.handleImport(ctx, msg)
	case "cancel":
		return b.cancelDialogs(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я садовый планировщик: напомню полить, подкормить и обрезать растения.</b>\n\nКоманды:\n"+
			"• /today — задачи на сегодня\n"+
			"• /tasks — все задачи\n"+
			"• /newtask — добавить задачу\n"+
			"• /plants — мои растения\n"+
			"• /newplant — добавить растение\n"+
			"• /generate — создать задачи по графику ухода\n"+
			"• /journal — дневник сада\n"+
			"• /export, /import — резервная копия\n"+
			"• /help — подсказки",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /today — задачи на сегодня, включая просроченные\n" +
		"• /tasks — все задачи с кнопками выполнения\n" +
		"• /newtask — добавить задачу пошагово\n" +
		"• /done &lt;id&gt; — отметить задачу выполненной\n" +
		"• /snooze &lt;id&gt; [дни] — отложить задачу (по умолчанию на 1 день)\n" +
		"• /skip &lt;id&gt; — пропустить один повтор\n" +
		"• /delete &lt;id&gt; — удалить задачу\n" +
		"• /plants, /newplant — растения\n" +
		"• /generate — создать задачи по графику ухода\n" +
		"• /journal — последние записи дневника\n" +
		"• /note &lt;текст&gt; — запись в дневник (или пришли фото с подписью)\n" +
		"• /export [data|full|images] — выгрузить резервную копию\n" +
		"• /import [merge|replace|images] — загрузить резервную копию файлом\n" +
		"• /cancel — отменить текущий ввод\n\n" +
		"Вместо полного id можно указать первые символы, например /done 3f2a9c1b."
	return b.sendText(msg.Chat.ID, text)
}

// cancelDialogs drops any conversation, confirmation or pending import.
func (b *Bot) cancelDialogs(ctx context.Context, msg *tgbotapi.Message) error {
	b.clearConversation(msg.From.ID)
	b.clearConfirmation(msg.From.ID)
	if mode, ok := b.takeImport(msg.From.ID); ok {
		return b.runImport(ctx, msg.Chat.ID, msg.From, mode, func(context.Context) ([]byte, error) {
			return nil, backup.ErrPickerCancelled
		})
	}
	return b.sendTextWithRemove(msg.Chat.ID, "⏪ Ввод отменён.")
}

// SendDailyReports sends a summary to every user that came in through the bot.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range users {
		user := &users[i]
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramID == nil {
			continue
		}
		text, err := b.reminders.DailySummary(ctx, user, now)
		if err != nil {
			b.logger.Printf("build summary for user %s: %v", user.ID, err)
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.logger.Printf("send summary to %d: %v", *user.TelegramID, err)
		}
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

// download fetches a file the user sent to the bot.
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.api.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("%w: file is larger than %d MB", model.ErrInvalidInput, maxDownloadSize>>20)
	}
	return data, nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Главное меню")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

// sendError explains a failed operation in user terms.
func (b *Bot) sendError(chatID int64, action string, err error) error {
	b.logger.Printf("[warn] %s: %v", action, err)
	return b.sendText(chatID, describeError(action, err))
}

func describeError(action string, err error) string {
	var verr *backup.ValidationError
	switch {
	case errors.Is(err, resilience.ErrNoNetwork):
		return fmt.Sprintf("📡 %s: нет связи с сервером. Попробуй позже.", action)
	case errors.Is(err, resilience.ErrTimeout):
		return fmt.Sprintf("⌛ %s: сервер не ответил вовремя.", action)
	case errors.Is(err, model.ErrNotFound):
		return fmt.Sprintf("%s: не найдено.", action)
	case errors.As(err, &verr):
		return fmt.Sprintf("%s: файл резервной копии некорректен (%s: %s).", action, escape(verr.Field), escape(verr.Reason))
	case errors.Is(err, model.ErrInvalidInput):
		return fmt.Sprintf("%s: некорректные данные. %s", action, escape(err.Error()))
	default:
		return fmt.Sprintf("%s: %s", action, escape(err.Error()))
	}
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) setImport(userID int64, mode backup.Mode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imports[userID] = mode
}

// takeImport returns and clears the pending import of a user.
func (b *Bot) takeImport(userID int64) (backup.Mode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mode, ok := b.imports[userID]
	delete(b.imports, userID)
	return mode, ok
}

func escape(s string) string {
	return html.EscapeString(s)
}
