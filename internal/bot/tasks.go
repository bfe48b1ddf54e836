package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"garden-planner/internal/model"
	"garden-planner/internal/service"
)

const (
	cbDonePrefix        = "done:"
	cbSnoozePrefix      = "snooze:"
	cbSkipPrefix        = "skip:"
	cbDeletePrefix      = "delete:"
	cbDeletePlantPrefix = "plantdel:"
)

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminders.DailySummary(ctx, user, time.Now())
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось сформировать список", err)
	}
	due, err := b.tasks.GetTodayTasks(ctx, user)
	if err != nil || len(due) == 0 {
		return b.sendText(msg.Chat.ID, text)
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, t := range due {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %s #%s", service.KindLabel(t.Kind), shortID(t.ID)), cbDonePrefix+t.ID),
			tgbotapi.NewInlineKeyboardButtonData("💤 +1 дн.", cbSnoozePrefix+t.ID),
		))
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(reply)
	return err
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	b.logger.Printf("[info] list tasks for user=%s", user.ID)
	return b.sendTaskList(ctx, msg.Chat.ID, user)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User) error {
	templates, err := b.tasks.GetTaskTemplates(ctx, user)
	if err != nil {
		return b.sendError(chatID, "Не удалось получить задачи", err)
	}
	if len(templates) == 0 {
		return b.sendText(chatID, "Задач пока нет. Добавь растение через /newplant и нажми /generate или создай задачу через /newtask.")
	}

	plants, _ := b.plants.List(ctx, user)
	names := make(map[string]string, len(plants))
	for _, p := range plants {
		names[p.ID] = p.Name
	}

	groups := make(map[string][]model.TaskTemplate)
	var order []string
	for _, t := range templates {
		key := ""
		if !t.General() {
			key = *t.PlantID
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i] == "" {
			return false
		}
		if order[j] == "" {
			return true
		}
		return groupTitle(order[i], names) < groupTitle(order[j], names)
	})

	loc := b.tasks.Location()
	now := time.Now()

	var builder strings.Builder
	builder.WriteString("📋 <b>Задачи</b>\n")
	builder.WriteString("Нажми на кнопку, чтобы отметить задачу, пропустить повтор или удалить её.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, key := range order {
		section := groups[key]
		sort.SliceStable(section, func(i, j int) bool { return section[i].NextDueAt.Before(section[j].NextDueAt) })

		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", escape(groupTitle(key, names))))
		for _, t := range section {
			builder.WriteString(formatTemplate(t, now, loc))
			if !t.Enabled {
				continue
			}
			row := []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ #%s", shortID(t.ID)), cbDonePrefix+t.ID),
			}
			if !t.OneTime() {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData("⏭", cbSkipPrefix+t.ID))
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+t.ID))
			buttons = append(buttons, row)
		}
		builder.WriteByte('\n')
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	plants, err := b.plants.List(ctx, user)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось получить растения", err)
	}

	state := &conversationState{stage: stageTaskPlant, plants: make(map[string]string, len(plants))}
	names := make([]string, 0, len(plants))
	for _, p := range plants {
		state.plants[strings.ToLower(strings.TrimSpace(p.Name))] = p.ID
		names = append(names, p.Name)
	}
	b.logger.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, state)
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Новая задача.\n<b>Шаг 1:</b> для какого растения? Или нажми «Общая задача».", plantKeyboard(names))
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTaskPlant:
		if !isGeneralInput(text) {
			id, ok := state.plants[strings.ToLower(text)]
			if !ok {
				return b.sendText(msg.Chat.ID, "Не нашёл такое растение. Выбери его на клавиатуре или нажми «Общая задача».")
			}
			state.task.PlantID = id
		}
		state.stage = stageTaskKind
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Шаг 2:</b> что нужно сделать?", kindKeyboard())
	case stageTaskKind:
		kind, ok := parseKindInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери действие на клавиатуре.", kindKeyboard())
		}
		state.task.Kind = kind
		state.stage = stageTaskFrequency
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Шаг 3:</b> как часто повторять, в днях? 0 или «Пропустить» означает разовую задачу.", skipKeyboard())
	case stageTaskFrequency:
		if !isSkipInput(text) {
			days, err := strconv.Atoi(text)
			if err != nil || days < 0 || days > 365 {
				return b.sendText(msg.Chat.ID, "Интервал должен быть числом дней от 0 до 365.")
			}
			state.task.FrequencyDays = days
		}
		state.stage = stageTaskDue
		return b.sendWithReplyMarkup(msg.Chat.ID, "<b>Шаг 4:</b> когда выполнить впервые? Формат <code>2025-05-30</code>, «Пропустить» означает сегодня.", skipKeyboard())
	case stageTaskDue:
		if !isSkipInput(text) {
			if _, err := time.Parse("2006-01-02", text); err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2025-05-30</code> или «Пропустить».", skipKeyboard())
			}
			state.task.NextDueAt = text
		}
		err := b.finishTaskCreation(ctx, msg.From, state.task, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	case stagePlantName:
		if text == "" {
			return b.sendText(msg.Chat.ID, "Название не может быть пустым.")
		}
		state.plant.Name = text
		state.stage = stagePlantWater
		return b.sendWithReplyMarkup(msg.Chat.ID, "💧 Как часто поливать, в днях? «Пропустить», если график не нужен.", skipKeyboard())
	case stagePlantWater:
		if !isSkipInput(text) {
			days, err := strconv.Atoi(text)
			if err != nil || days <= 0 || days > 365 {
				return b.sendText(msg.Chat.ID, "Интервал должен быть числом дней от 1 до 365.")
			}
			state.plant.Care = model.CareSchedule{AutoGenerate: true, WaterEveryDays: days}
		}
		err := b.finishPlantCreation(ctx, msg.From, state.plant, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	tmpl, err := b.tasks.CreateTaskTemplate(ctx, user, input)
	if err != nil {
		return b.sendError(chatID, "Не удалось сохранить задачу", err)
	}

	b.logger.Printf("[info] template created id=%s user=%s frequency=%d", tmpl.ID, user.ID, tmpl.FrequencyDays)

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", shortID(tmpl.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Действие:</b> %s\n", service.KindLabel(tmpl.Kind)))
	summary.WriteString(fmt.Sprintf("• <b>Срок:</b> %s\n", tmpl.NextDueAt.In(b.tasks.Location()).Format("2006-01-02")))
	if tmpl.OneTime() {
		summary.WriteString("• <b>Повтор:</b> разовая задача\n")
	} else {
		summary.WriteString(fmt.Sprintf("• <b>Повтор:</b> каждые %d дн.\n", tmpl.Frequency()))
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, user)
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /done 3f2a9c1b")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tmpl, err := b.tasks.FindTaskTemplate(ctx, user, ref)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Задача", err)
	}
	return b.completeTemplate(ctx, msg.Chat.ID, user, tmpl)
}

func (b *Bot) completeTemplate(ctx context.Context, chatID int64, user *model.User, tmpl *model.TaskTemplate) error {
	counted, err := b.tasks.MarkTaskDone(ctx, user, tmpl, service.DoneInput{})
	if err != nil {
		return b.sendError(chatID, "Не удалось отметить задачу", err)
	}
	if !counted {
		return b.sendText(chatID, fmt.Sprintf("Задача «%s» уже отмечена сегодня.", service.KindLabel(tmpl.Kind)))
	}
	b.logger.Printf("[info] template completed id=%s user=%s", tmpl.ID, user.ID)
	if tmpl.OneTime() {
		return b.sendText(chatID, fmt.Sprintf("✅ Разовая задача «%s» выполнена.", service.KindLabel(tmpl.Kind)))
	}
	next := time.Now().In(b.tasks.Location()).AddDate(0, 0, tmpl.Frequency())
	return b.sendText(chatID, fmt.Sprintf("♻️ Задача «%s» выполнена. Следующий раз: %s.", service.KindLabel(tmpl.Kind), next.Format("2006-01-02")))
}

func (b *Bot) handleSnooze(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи и число дней: /snooze 3f2a9c1b 2")
	}
	days := 1
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed <= 0 {
			return b.sendText(msg.Chat.ID, "Число дней должно быть положительным.")
		}
		days = parsed
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tmpl, err := b.tasks.FindTaskTemplate(ctx, user, args[0])
	if err != nil {
		return b.sendError(msg.Chat.ID, "Задача", err)
	}
	return b.snoozeTemplate(ctx, msg.Chat.ID, user, tmpl.ID, days)
}

func (b *Bot) snoozeTemplate(ctx context.Context, chatID int64, user *model.User, id string, days int) error {
	tmpl, err := b.tasks.SnoozeTask(ctx, user, id, days)
	if err != nil {
		return b.sendError(chatID, "Не удалось отложить задачу", err)
	}
	return b.sendText(chatID, fmt.Sprintf("💤 Задача «%s» отложена до %s.", service.KindLabel(tmpl.Kind), tmpl.NextDueAt.In(b.tasks.Location()).Format("2006-01-02")))
}

func (b *Bot) handleSkip(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /skip 3f2a9c1b")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tmpl, err := b.tasks.FindTaskTemplate(ctx, user, ref)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Задача", err)
	}
	return b.skipTemplate(ctx, msg.Chat.ID, user, tmpl.ID)
}

func (b *Bot) skipTemplate(ctx context.Context, chatID int64, user *model.User, id string) error {
	tmpl, err := b.tasks.SkipTask(ctx, user, id)
	if err != nil {
		return b.sendError(chatID, "Не удалось пропустить повтор", err)
	}
	return b.sendText(chatID, fmt.Sprintf("⏭ Повтор пропущен. «%s» теперь %s.", service.KindLabel(tmpl.Kind), tmpl.NextDueAt.In(b.tasks.Location()).Format("2006-01-02")))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 3f2a9c1b")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tmpl, err := b.tasks.FindTaskTemplate(ctx, user, ref)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Задача", err)
	}
	return b.askDeleteConfirmation(msg.Chat.ID, msg.From.ID, tmpl)
}

func (b *Bot) askDeleteConfirmation(chatID, userID int64, tmpl *model.TaskTemplate) error {
	label := service.KindLabel(tmpl.Kind)
	b.setConfirmation(userID, confirmationRequest{id: tmpl.ID, label: label, action: actionDeleteTask})
	return b.sendWithReplyMarkup(chatID, fmt.Sprintf("Удалить задачу «%s» (#%s)?", label, shortID(tmpl.ID)), confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		user, err := b.ensureUser(ctx, msg.From)
		if err != nil {
			return err
		}
		if req.action == actionDeletePlant {
			if err := b.plants.Delete(ctx, user, req.id); err != nil {
				return b.sendError(msg.Chat.ID, "Не удалось удалить растение", err)
			}
			b.logger.Printf("[info] plant deleted id=%s user=%s", req.id, user.ID)
			return b.sendTextWithRemove(msg.Chat.ID, fmt.Sprintf("🗑 Растение «%s» и его задачи удалены.", escape(req.label)))
		}
		if err := b.tasks.DeleteTask(ctx, user, req.id); err != nil {
			return b.sendError(msg.Chat.ID, "Не удалось удалить задачу", err)
		}
		b.logger.Printf("[info] template deleted id=%s user=%s", req.id, user.ID)
		if err := b.sendTextWithRemove(msg.Chat.ID, fmt.Sprintf("🗑 Задача «%s» удалена.", req.label)); err != nil {
			return err
		}
		return b.sendTaskList(ctx, msg.Chat.ID, user)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Подтверди или отмени удаление.", confirmKeyboard())
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Printf("callback ack: %v", err)
	}

	prefix, id, ok := parseCallback(cb.Data)
	if !ok {
		return nil
	}
	b.logger.Printf("[info] callback %s user=%d id=%s", strings.TrimSuffix(prefix, ":"), cb.From.ID, id)

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	chatID := cb.Message.Chat.ID

	switch prefix {
	case cbDonePrefix:
		tmpl, err := b.tasks.GetTaskTemplate(ctx, user, id)
		if err != nil {
			return b.sendError(chatID, "Задача", err)
		}
		return b.completeTemplate(ctx, chatID, user, tmpl)
	case cbSnoozePrefix:
		return b.snoozeTemplate(ctx, chatID, user, id, 1)
	case cbSkipPrefix:
		return b.skipTemplate(ctx, chatID, user, id)
	case cbDeletePrefix:
		tmpl, err := b.tasks.GetTaskTemplate(ctx, user, id)
		if err != nil {
			return b.sendError(chatID, "Задача", err)
		}
		return b.askDeleteConfirmation(chatID, cb.From.ID, tmpl)
	case cbDeletePlantPrefix:
		plant, err := b.plants.Get(ctx, user, id)
		if err != nil {
			return b.sendError(chatID, "Растение", err)
		}
		b.setConfirmation(cb.From.ID, confirmationRequest{id: plant.ID, label: plant.Name, action: actionDeletePlant})
		return b.sendWithReplyMarkup(chatID, fmt.Sprintf("Удалить растение «%s» вместе с его задачами?", escape(plant.Name)), confirmKeyboard())
	}
	return nil
}

func parseCallback(data string) (string, string, bool) {
	for _, prefix := range []string{cbDonePrefix, cbSnoozePrefix, cbSkipPrefix, cbDeletePrefix, cbDeletePlantPrefix} {
		if strings.HasPrefix(data, prefix) {
			id := strings.TrimPrefix(data, prefix)
			return prefix, id, id != ""
		}
	}
	return "", "", false
}
