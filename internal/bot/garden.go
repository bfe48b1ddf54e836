package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"garden-planner/internal/backup"
	"garden-planner/internal/model"
	"garden-planner/internal/service"
)

const journalPreviewSize = 10

func (b *Bot) handlePlants(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	plants, err := b.plants.List(ctx, user)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось получить растения", err)
	}
	if len(plants) == 0 {
		return b.sendText(msg.Chat.ID, "Растений пока нет. Добавь первое через /newplant.")
	}

	var builder strings.Builder
	builder.WriteString("🌱 <b>Растения</b>\n\n")
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, p := range plants {
		builder.WriteString(formatPlant(p))
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 "+shortTitle(p.Name, 24), cbDeletePlantPrefix+p.ID),
		))
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, strings.TrimSpace(builder.String()))
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err = b.api.Send(reply)
	return err
}

func (b *Bot) startNewPlantConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stagePlantName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🌱 Новое растение.\n<b>Шаг 1:</b> как оно называется?", cancelKeyboard())
}

func (b *Bot) finishPlantCreation(ctx context.Context, from *tgbotapi.User, input service.PlantInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	plant, err := b.plants.Create(ctx, user, input)
	if err != nil {
		return b.sendError(chatID, "Не удалось сохранить растение", err)
	}
	b.logger.Printf("[info] plant created id=%s user=%s", plant.ID, user.ID)

	text := fmt.Sprintf("✅ Растение «%s» добавлено.", escape(plant.Name))
	if plant.Care.AutoGenerate {
		created, err := b.tasks.GenerateRecurringTasksFromPlants(ctx, user, []model.Plant{*plant})
		if err != nil {
			b.logger.Printf("[warn] generate tasks for plant %s: %v", plant.ID, err)
		}
		if len(created) > 0 {
			text += fmt.Sprintf("\nСоздано задач по графику ухода: %d.", len(created))
		}
	}
	return b.sendTextWithRemove(chatID, text)
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	plants, err := b.plants.List(ctx, user)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось получить растения", err)
	}
	created, err := b.tasks.GenerateRecurringTasksFromPlants(ctx, user, plants)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось создать задачи", err)
	}
	if len(created) == 0 {
		return b.sendText(msg.Chat.ID, "Все задачи по графику ухода уже созданы.")
	}
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("♻️ Создано задач: %d\n", len(created)))
	for _, t := range created {
		builder.WriteString(fmt.Sprintf("• %s, каждые %d дн.\n", service.KindLabel(t.Kind), t.Frequency()))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleJournal(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	entries, err := b.journal.List(ctx, user)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось открыть дневник", err)
	}
	if len(entries) == 0 {
		return b.sendText(msg.Chat.ID, "Дневник пуст. Добавь запись через /note или пришли фото с подписью.")
	}
	if len(entries) > journalPreviewSize {
		entries = entries[:journalPreviewSize]
	}
	loc := b.tasks.Location()
	var builder strings.Builder
	builder.WriteString("📔 <b>Дневник</b>\n\n")
	for _, e := range entries {
		builder.WriteString(fmt.Sprintf("<b>%s</b> %s\n", e.EntryDate.In(loc).Format("2006-01-02"), escape(e.Title)))
		if e.Body != "" {
			builder.WriteString(fmt.Sprintf("   %s\n", escape(e.Body)))
		}
		if len(e.Photos) > 0 {
			builder.WriteString(fmt.Sprintf("   📷 %d фото\n", len(e.Photos)))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleNote(ctx context.Context, msg *tgbotapi.Message) error {
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		return b.sendText(msg.Chat.ID, "Напиши текст записи: /note Первые бутоны на розе")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	title, body, _ := strings.Cut(text, "\n")
	entry, err := b.journal.Create(ctx, user, service.JournalInput{Title: title, Body: strings.TrimSpace(body)})
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось сохранить запись", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📔 Запись «%s» сохранена.", escape(entry.Title)))
}

// handlePhoto stores the largest size of a sent picture and files it as a
// journal entry titled by the caption.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	if b.photos == nil {
		return b.sendText(msg.Chat.ID, "Хранилище фото не настроено.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	largest := msg.Photo[len(msg.Photo)-1]
	data, err := b.download(ctx, largest.FileID)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось получить фото", err)
	}
	path, err := b.photos.Save(largest.FileUniqueID+".jpg", bytes.NewReader(data))
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось сохранить фото", err)
	}

	title := strings.TrimSpace(msg.Caption)
	if title == "" {
		title = "Фото"
	}
	if _, err := b.journal.Create(ctx, user, service.JournalInput{Title: title, Photos: []string{path}}); err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось сохранить запись", err)
	}
	return b.sendText(msg.Chat.ID, "📷 Фото добавлено в дневник.")
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) error {
	raw := strings.TrimSpace(msg.CommandArguments())
	if raw == "" {
		raw = string(backup.ExportDataImages)
	}
	kind, err := backup.ParseExportKind(raw)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Формат выгрузки: data, full или images. Например: /export full")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	exp, err := b.backups.Export(ctx, user, kind)
	if err != nil {
		return b.sendError(msg.Chat.ID, "Не удалось выгрузить данные", err)
	}
	b.logger.Printf("[info] export %s for user=%s size=%d", kind, user.ID, len(exp.Data))

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{Name: exp.Name, Bytes: exp.Data})
	doc.Caption = "💾 Резервная копия сада"
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) handleImport(ctx context.Context, msg *tgbotapi.Message) error {
	raw := strings.TrimSpace(msg.CommandArguments())
	if raw == "" {
		raw = string(backup.ModeMerge)
	}
	mode, err := backup.ParseMode(raw)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Режим импорта: merge, replace или images. Например: /import merge")
	}
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setImport(msg.From.ID, mode)

	text := "📥 Пришли файл резервной копии (.json или .zip) следующим сообщением."
	if mode == backup.ModeReplace {
		text += "\n⚠️ Режим replace удалит все текущие растения, задачи и записи перед загрузкой."
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, text, cancelKeyboard())
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	mode, ok := b.takeImport(msg.From.ID)
	if !ok {
		return b.sendText(msg.Chat.ID, "Чтобы загрузить резервную копию, сначала набери /import.")
	}
	fileID := msg.Document.FileID
	return b.runImport(ctx, msg.Chat.ID, msg.From, mode, func(ctx context.Context) ([]byte, error) {
		return b.download(ctx, fileID)
	})
}

func (b *Bot) runImport(ctx context.Context, chatID int64, from *tgbotapi.User, mode backup.Mode, pick backup.Picker) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	res, err := b.backups.Import(ctx, user, mode, pick)
	if err != nil {
		return b.sendError(chatID, "Импорт не выполнен", err)
	}
	if res.Cancelled {
		return b.sendTextWithRemove(chatID, "⏪ Импорт отменён.")
	}
	text := fmt.Sprintf("✅ Импорт завершён (%s)\n• растения: %d\n• задачи: %d\n• выполнения: %d\n• записи дневника: %d\n• фото: %d",
		mode, res.Plants, res.Tasks, res.TaskLogs, res.Journal, res.Images)
	return b.sendTextWithRemove(chatID, text)
}
