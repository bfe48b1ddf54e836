package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"garden-planner/internal/backup"
	"garden-planner/internal/model"
)

func TestFilePicker(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/tmp/backup.json", []byte(`{"tasks":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx := context.Background()

	data, err := filePicker(fs, "/tmp/backup.json", strings.NewReader(""), &bytes.Buffer{})(ctx)
	if err != nil || string(data) != `{"tasks":[]}` {
		t.Fatalf("explicit path: %q, %v", data, err)
	}

	var prompt bytes.Buffer
	data, err = filePicker(fs, "", strings.NewReader("/tmp/backup.json\n"), &prompt)(ctx)
	if err != nil || len(data) == 0 {
		t.Fatalf("prompted path: %q, %v", data, err)
	}
	if !strings.Contains(prompt.String(), "backup file") {
		t.Fatalf("expected a prompt, got %q", prompt.String())
	}

	if _, err := filePicker(fs, "", strings.NewReader("\n"), &bytes.Buffer{})(ctx); !errors.Is(err, backup.ErrPickerCancelled) {
		t.Fatalf("expected ErrPickerCancelled, got %v", err)
	}
	if _, err := filePicker(fs, "", strings.NewReader(""), &bytes.Buffer{})(ctx); !errors.Is(err, backup.ErrPickerCancelled) {
		t.Fatalf("expected ErrPickerCancelled on EOF, got %v", err)
	}
}

func TestRenderTemplate(t *testing.T) {
	now := time.Date(2024, time.May, 14, 9, 0, 0, 0, time.UTC)
	today := model.StartOfDay(now, time.UTC)
	plantID := "plant-0001-rose"
	names := map[string]string{plantID: "Rose"}

	line := renderTemplate(model.TaskTemplate{
		ID:            "0123456789abcdef",
		PlantID:       &plantID,
		Kind:          model.TaskWater,
		FrequencyDays: 3,
		Enabled:       true,
		NextDueAt:     now.AddDate(0, 0, -2),
	}, names, today, time.UTC)
	for _, want := range []string{"01234567", "water", "Rose", "every 3d", "overdue 2024-05-12"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q is missing %q", line, want)
		}
	}
	if strings.Contains(line, "89abcdef") {
		t.Fatalf("expected a short id in %q", line)
	}

	line = renderTemplate(model.TaskTemplate{ID: "x", Kind: model.TaskRepot, NextDueAt: now}, names, today, time.UTC)
	for _, want := range []string{"general", "one-time", "disabled"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q is missing %q", line, want)
		}
	}
}

func TestPlantName(t *testing.T) {
	id, missing, empty := "p1", "p2", ""
	names := map[string]string{"p1": "Fern"}
	for _, tt := range []struct {
		id   *string
		want string
	}{
		{&id, "Fern"},
		{&missing, "unknown plant"},
		{&empty, "general"},
		{nil, "general"},
	} {
		if got := plantName(tt.id, names); got != tt.want {
			t.Fatalf("plantName = %q, want %q", got, tt.want)
		}
	}
}
