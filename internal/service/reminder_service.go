package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"garden-planner/internal/model"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	tasks  *TaskService
	plants *PlantService
}

func NewReminderService(tasks *TaskService, plants *PlantService) *ReminderService {
	return &ReminderService{tasks: tasks, plants: plants}
}

// DailySummary lists today's care tasks grouped by plant. General tasks come
// last, overdue tasks are flagged.
func (s *ReminderService) DailySummary(ctx context.Context, user *model.User, now time.Time) (string, error) {
	tasks, err := s.tasks.GetTodayTasks(ctx, user)
	if err != nil {
		return "", err
	}

	plants, err := s.plants.List(ctx, user)
	if err != nil {
		return "", err
	}
	plantNames := make(map[string]string, len(plants))
	for _, p := range plants {
		plantNames[p.ID] = p.Name
	}

	groups := make(map[string][]model.TaskTemplate)
	var order []string
	for _, t := range tasks {
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
		switch {
		case order[i] == "":
			return false
		case order[j] == "":
			return true
		default:
			return plantLabel(order[i], plantNames) < plantLabel(order[j], plantNames)
		}
	})

	loc := s.tasks.Location()
	local := now.In(loc)
	var builder strings.Builder
	builder.WriteString("🌱 <b>Уход за садом</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", local.Format("02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("— на сегодня задач нет\n")
		return strings.TrimSpace(builder.String()), nil
	}

	startOfDay := model.StartOfDay(now, loc)
	for _, key := range order {
		if key == "" {
			builder.WriteString("🧺 <b>Общие задачи</b>\n")
		} else {
			builder.WriteString(fmt.Sprintf("🪴 <b>%s</b>\n", html.EscapeString(plantLabel(key, plantNames))))
		}
		for _, t := range groups[key] {
			builder.WriteString(formatCareTask(t, startOfDay, loc))
		}
		builder.WriteByte('\n')
	}

	return strings.TrimSpace(builder.String()), nil
}

func plantLabel(id string, names map[string]string) string {
	if name := strings.TrimSpace(names[id]); name != "" {
		return name
	}
	return "Растение без названия"
}

var kindLabels = map[model.TaskKind]string{
	model.TaskWater:     "💧 Полить",
	model.TaskFertilise: "🧪 Подкормить",
	model.TaskPrune:     "✂️ Обрезать",
	model.TaskRepot:     "🪣 Пересадить",
	model.TaskSpray:     "🌫 Опрыскать",
	model.TaskMulch:     "🍂 Замульчировать",
}

// KindLabel is the display name of a task kind.
func KindLabel(kind model.TaskKind) string {
	if label, ok := kindLabels[kind]; ok {
		return label
	}
	return string(kind)
}

var timeOfDayLabels = map[model.TimeOfDay]string{
	model.Morning:   "утром",
	model.Afternoon: "днём",
	model.Evening:   "вечером",
}

func formatCareTask(t model.TaskTemplate, startOfDay time.Time, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(KindLabel(t.Kind))
	if label, ok := timeOfDayLabels[t.PreferredTime]; ok {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", label))
	}

	due := t.NextDueAt.In(loc)
	if due.Before(startOfDay) {
		days := int(startOfDay.Sub(due).Hours()/24) + 1
		sb.WriteString(fmt.Sprintf("\n     ⚠️ с %s — <b>просрочено</b> на %d дн.", due.Format("2006-01-02"), days))
	}
	if t.Frequency() > 0 {
		sb.WriteString(fmt.Sprintf("\n     ♻️ каждые %d дн.", t.Frequency()))
	}

	sb.WriteByte('\n')
	return sb.String()
}
