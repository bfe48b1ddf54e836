package service

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"garden-planner/internal/model"
	"garden-planner/internal/photos"
	"garden-planner/internal/repository"
)

func TestPlantCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.plants.Create(ctx, f.user, PlantInput{Name: "  "}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := f.plants.Create(ctx, f.user, PlantInput{Name: "Rose", Care: model.CareSchedule{WaterEveryDays: -1}}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative interval, got %v", err)
	}
}

func TestPlantDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fs := afero.NewMemMapFs()
	library, err := photos.NewLibrary(fs, "/photos", nil, time.Second)
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	if _, err := library.Save("rose.jpg", strings.NewReader("jpeg")); err != nil {
		t.Fatalf("save photo: %v", err)
	}
	plants := NewPlantService(f.store, f.guard, f.local, library, log.New(&bytes.Buffer{}, "", 0))

	rose, err := plants.Create(ctx, f.user, PlantInput{Name: "Rose", PhotoURI: "file:///old/device/rose.jpg"})
	if err != nil {
		t.Fatalf("create plant: %v", err)
	}
	roseID := rose.ID
	f.addTemplate(t, model.TaskTemplate{ID: "rose-water", PlantID: &roseID, Enabled: true})
	f.addTemplate(t, model.TaskTemplate{ID: "general", Enabled: true})

	if err := plants.Delete(ctx, f.user, rose.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	remaining, err := f.store.Templates().List(ctx, f.user.ID, repository.TemplateFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "general" {
		t.Fatalf("expected only the general template to remain, got %+v", remaining)
	}
	if ok, _ := afero.Exists(fs, "/photos/rose.jpg"); ok {
		t.Fatal("expected plant photo to be removed")
	}
	if err := plants.Delete(ctx, f.user, rose.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPlantListFallsBackToCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.plants.Create(ctx, f.user, PlantInput{Name: "Fern"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.plants.List(ctx, f.user); err != nil {
		t.Fatalf("list: %v", err)
	}
	f.store.Fail(errors.New("offline"))
	got, err := f.plants.List(ctx, f.user)
	if err != nil {
		t.Fatalf("list from cache: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Fern" {
		t.Fatalf("unexpected cached plants %+v", got)
	}
}

func TestPlantFindByPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fern, err := f.plants.Create(ctx, f.user, PlantInput{Name: "Fern"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := f.plants.Find(ctx, f.user, "#"+fern.ID[:8])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "Fern" {
		t.Fatalf("found %+v", got)
	}
	if _, err := f.plants.Find(ctx, f.user, "zzzz"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJournalCreateAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	journal := NewJournalService(f.store, f.guard, f.local, time.UTC, nil)
	journal.now = func() time.Time { return testNow }

	if _, err := journal.Create(ctx, f.user, JournalInput{Title: ""}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	older, err := journal.Create(ctx, f.user, JournalInput{Title: "First sprouts", EntryDate: "2024-04-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	newer, err := journal.Create(ctx, f.user, JournalInput{Title: "Aphids", Photos: []string{"aphids.jpg"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	entries, err := journal.List(ctx, f.user)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != newer.ID || entries[1].ID != older.ID {
		t.Fatalf("expected newest entry first, got %+v", entries)
	}

	if err := journal.Delete(ctx, f.user, older.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err = journal.List(ctx, f.user)
	if err != nil || len(entries) != 1 {
		t.Fatalf("after delete: %d entries, err=%v", len(entries), err)
	}
}

func TestDailySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rose, err := f.plants.Create(ctx, f.user, PlantInput{Name: "Rose"})
	if err != nil {
		t.Fatalf("create plant: %v", err)
	}
	roseID := rose.ID
	f.addTemplate(t, model.TaskTemplate{ID: "w", PlantID: &roseID, Kind: model.TaskWater, FrequencyDays: 2, Enabled: true, NextDueAt: testNow.AddDate(0, 0, -2)})
	f.addTemplate(t, model.TaskTemplate{ID: "m", Kind: model.TaskMulch, Enabled: true, NextDueAt: testNow, PreferredTime: model.Evening})
	f.addTemplate(t, model.TaskTemplate{ID: "future", Kind: model.TaskPrune, Enabled: true, NextDueAt: testNow.AddDate(0, 0, 3)})

	reminders := NewReminderService(f.tasks, f.plants)
	text, err := reminders.DailySummary(ctx, f.user, testNow)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{"Rose", "Полить", "просрочено", "Общие задачи", "Замульчировать", "вечером"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Обрезать") {
		t.Fatalf("summary lists a future task:\n%s", text)
	}
	if strings.Index(text, "Rose") > strings.Index(text, "Общие задачи") {
		t.Fatalf("plant group must precede general tasks:\n%s", text)
	}
}

func TestDailySummaryEmpty(t *testing.T) {
	f := newFixture(t)
	text, err := NewReminderService(f.tasks, f.plants).DailySummary(context.Background(), f.user, testNow)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(text, "задач нет") {
		t.Fatalf("unexpected empty summary:\n%s", text)
	}
}

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"07:30", "0 30 7 * * *", false},
		{"23:59", "0 59 23 * * *", false},
		{"24:00", "", true},
		{"7", "", true},
		{"aa:10", "", true},
	}
	for _, tt := range tests {
		got, err := buildDailySpec(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("buildDailySpec(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("buildDailySpec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSchedulerRejectsBadInput(t *testing.T) {
	s := NewSchedulerService(time.UTC, log.New(&bytes.Buffer{}, "", 0))
	noop := func(context.Context) error { return nil }
	if _, err := s.ScheduleInterval(0, "noop", 0, noop); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if _, err := s.ScheduleSpec("not a spec", "noop", 0, noop); err == nil {
		t.Fatal("expected error for bad spec")
	}
	if _, err := s.ScheduleDaily("06:00", "noop", time.Second, noop); err != nil {
		t.Fatalf("schedule daily: %v", err)
	}
}

func TestSchedulerWrapLogsFailures(t *testing.T) {
	var logs bytes.Buffer
	s := NewSchedulerService(time.UTC, log.New(&logs, "", 0))
	s.wrap("check", time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected job context with deadline")
		}
		return errors.New("boom")
	})()
	if !strings.Contains(logs.String(), "job check: boom") {
		t.Fatalf("expected failure log, got %q", logs.String())
	}
}
