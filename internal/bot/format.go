package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"garden-planner/internal/model"
	"garden-planner/internal/service"
)

const (
	btnSkip          = "⏭️ Пропустить"
	btnGeneral       = "🏡 Общая задача"
	btnConfirm       = "✅ Подтвердить"
	btnCancel        = "↩️ Отмена"
	btnCancelDialog  = "⏪ Отменить ввод"
	generalTasks     = "🏡 Общие задачи"
	iconDefault      = "🟢"
	iconDue          = "⏳"
	iconOverdue      = "⚠️"
	iconDisabled     = "⏸"
	menuLabelToday   = "🌤 Сегодня"
	menuLabelTasks   = "📋 Задачи"
	menuLabelPlants  = "🌱 Растения"
	menuLabelJournal = "📔 Дневник"
)

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelToday):
		return true, b.handleToday(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelPlants):
		return true, b.handlePlants(ctx, msg)
	case strings.ToLower(menuLabelJournal):
		return true, b.handleJournal(ctx, msg)
	default:
		return false, nil
	}
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelToday),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelPlants),
			tgbotapi.NewKeyboardButton(menuLabelJournal),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// plantKeyboard lays out plant names two per row.
func plantKeyboard(names []string) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(names); i += 2 {
		row := tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(names[i]))
		if i+1 < len(names) {
			row = append(row, tgbotapi.NewKeyboardButton(names[i+1]))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnGeneral),
		tgbotapi.NewKeyboardButton(btnCancelDialog),
	))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func kindKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(model.TaskKinds); i += 2 {
		row := tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(service.KindLabel(model.TaskKinds[i])))
		if i+1 < len(model.TaskKinds) {
			row = append(row, tgbotapi.NewKeyboardButton(service.KindLabel(model.TaskKinds[i+1])))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// parseKindInput accepts a keyboard label or a raw kind name.
func parseKindInput(text string) (model.TaskKind, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	for _, kind := range model.TaskKinds {
		if value == strings.ToLower(service.KindLabel(kind)) {
			return kind, true
		}
	}
	kind, err := model.ParseTaskKind(value)
	return kind, err == nil
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isGeneralInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnGeneral) || value == "общая задача" || value == "-"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод"
}

func groupTitle(plantID string, names map[string]string) string {
	if plantID == "" {
		return generalTasks
	}
	if name, ok := names[plantID]; ok && strings.TrimSpace(name) != "" {
		return "🌿 " + strings.TrimSpace(name)
	}
	return "🌿 Удалённое растение"
}

func formatTemplate(t model.TaskTemplate, now time.Time, loc *time.Location) string {
	var b strings.Builder
	due := t.NextDueAt.In(loc)
	startOfDay := model.StartOfDay(now, loc)
	endOfDay := model.EndOfDay(now, loc)

	icon := iconDefault
	switch {
	case !t.Enabled:
		icon = iconDisabled
	case due.Before(startOfDay):
		icon = iconOverdue
	case !due.After(endOfDay):
		icon = iconDue
	}
	b.WriteString(fmt.Sprintf("%s <b>#%s</b> %s\n", icon, shortID(t.ID), service.KindLabel(t.Kind)))

	switch {
	case !t.Enabled:
		b.WriteString("   выполнена, повторов нет\n")
	case due.Before(startOfDay):
		b.WriteString(fmt.Sprintf("   📅 %s · <b>просрочено</b>\n", due.Format("2006-01-02")))
	default:
		b.WriteString(fmt.Sprintf("   📅 %s\n", due.Format("2006-01-02")))
	}
	if t.OneTime() {
		b.WriteString("   1️⃣ разовая\n")
	} else {
		b.WriteString(fmt.Sprintf("   ♻️ каждые %d дн.\n", t.Frequency()))
	}
	return b.String()
}

func formatPlant(p model.Plant) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b>", escape(p.Name)))
	if p.Species != "" {
		b.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(p.Species)))
	}
	b.WriteByte('\n')
	if p.Location != "" {
		b.WriteString(fmt.Sprintf("   📍 %s\n", escape(p.Location)))
	}
	intervals := p.Care.Intervals()
	for _, kind := range model.TaskKinds {
		if days, ok := intervals[kind]; ok {
			b.WriteString(fmt.Sprintf("   %s: каждые %d дн.\n", service.KindLabel(kind), days))
		}
	}
	if len(intervals) > 0 && !p.Care.AutoGenerate {
		b.WriteString("   автосоздание задач выключено\n")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
