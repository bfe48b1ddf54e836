package bot

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"garden-planner/internal/backup"
	"garden-planner/internal/model"
	"garden-planner/internal/resilience"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data   string
		prefix string
		id     string
		ok     bool
	}{
		{"done:abc", cbDonePrefix, "abc", true},
		{"snooze:abc", cbSnoozePrefix, "abc", true},
		{"plantdel:p1", cbDeletePlantPrefix, "p1", true},
		{"done:", cbDonePrefix, "", false},
		{"other:abc", "", "", false},
	}
	for _, tt := range tests {
		prefix, id, ok := parseCallback(tt.data)
		if prefix != tt.prefix || id != tt.id || ok != tt.ok {
			t.Fatalf("parseCallback(%q) = %q, %q, %t", tt.data, prefix, id, ok)
		}
	}
}

func TestParseKindInput(t *testing.T) {
	for input, want := range map[string]model.TaskKind{
		"🧪 Подкормить": model.TaskFertilise,
		"fertilize":    model.TaskFertilise,
		" water ":      model.TaskWater,
	} {
		got, ok := parseKindInput(input)
		if !ok || got != want {
			t.Fatalf("parseKindInput(%q) = %q, %t", input, got, ok)
		}
	}
	if _, ok := parseKindInput("sing"); ok {
		t.Fatal("expected unknown kind to be rejected")
	}
}

func TestFormatTemplate(t *testing.T) {
	now := time.Date(2024, time.May, 14, 15, 30, 0, 0, time.UTC)
	overdue := formatTemplate(model.TaskTemplate{ID: "0123456789", Kind: model.TaskWater, FrequencyDays: 3, Enabled: true, NextDueAt: now.AddDate(0, 0, -1)}, now, time.UTC)
	for _, want := range []string{iconOverdue, "#01234567", "просрочено", "каждые 3 дн."} {
		if !strings.Contains(overdue, want) {
			t.Fatalf("overdue template missing %q:\n%s", want, overdue)
		}
	}
	done := formatTemplate(model.TaskTemplate{ID: "x", Kind: model.TaskRepot, NextDueAt: now}, now, time.UTC)
	if !strings.Contains(done, iconDisabled) || !strings.Contains(done, "разовая") {
		t.Fatalf("unexpected disabled one-time template:\n%s", done)
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("list: %w", resilience.ErrNoNetwork), "нет связи"},
		{resilience.ErrTimeout, "не ответил"},
		{model.ErrNotFound, "не найдено"},
		{&backup.ValidationError{Field: "tasks", Reason: "missing"}, "tasks: missing"},
		{fmt.Errorf("%w: bad <kind>", model.ErrInvalidInput), "bad &lt;kind&gt;"},
	}
	for _, tt := range tests {
		if got := describeError("Импорт", tt.err); !strings.Contains(got, tt.want) {
			t.Fatalf("describeError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestShortTitle(t *testing.T) {
	if got := shortTitle("Монстера деликатесная", 8); got != "Монстер…" {
		t.Fatalf("shortTitle = %q", got)
	}
	if got := shortTitle("Роза", 8); got != "Роза" {
		t.Fatalf("shortTitle = %q", got)
	}
}
