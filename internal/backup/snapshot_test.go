package backup

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"garden-planner/internal/model"
)

func TestDecodeCoercesTaskFields(t *testing.T) {
	doc := `{
		"plants": [],
		"tasks": [
			{"id": "a", "task_type": "water", "frequency_days": 3.9, "next_due_at": "2024-05-01T08:00:00.000Z"},
			{"id": "b", "task_type": "prune", "next_due_at": "2024-05-01", "enabled": false, "plant_id": ""}
		],
		"journal": [],
		"taskLogs": null
	}`
	snap, err := Decode([]byte(doc), time.UTC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []model.TaskTemplate{
		{ID: "a", Kind: model.TaskWater, FrequencyDays: 3, NextDueAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), Enabled: true},
		{ID: "b", Kind: model.TaskPrune, FrequencyDays: 0, NextDueAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Enabled: false},
	}
	if diff := cmp.Diff(want, snap.Tasks); diff != "" {
		t.Fatalf("tasks mismatch (-want +got):\n%s", diff)
	}
	if len(snap.TaskLogs) != 0 {
		t.Fatalf("expected no logs, got %d", len(snap.TaskLogs))
	}
}

func TestDecodeDateOnlyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	doc := `{"plants": [], "tasks": [{"id": "a", "task_type": "water", "next_due_at": "2024-05-01"}], "journal": []}`
	snap, err := Decode([]byte(doc), loc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, want := snap.Tasks[0].NextDueAt, time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("due = %s, want %s", got, want)
	}
}

func TestEncodeDecodeKeepsRecords(t *testing.T) {
	rose := "rose"
	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	in := &Snapshot{
		ExportedAt: due,
		Plants:     []model.Plant{{ID: rose, Name: "Rose", Care: model.CareSchedule{AutoGenerate: true, WaterEveryDays: 2}}},
		Tasks:      []model.TaskTemplate{{ID: "t", PlantID: &rose, Kind: model.TaskSpray, FrequencyDays: 14, NextDueAt: due, Enabled: true, PreferredTime: model.Morning}},
		TaskLogs:   []model.TaskLog{{ID: "l", TemplateID: "t", PlantID: &rose, Kind: model.TaskSpray, DoneAt: due, ProductUsed: "neem"}},
		Journal:    []model.JournalEntry{{ID: "j", Title: "Bloom", Photos: []string{"a.jpg"}, EntryDate: due}},
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data, time.UTC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestArchiveSkipsUnknownEntries(t *testing.T) {
	var buf bytes.Buffer
	images := []Image{{Name: "a.jpg", Data: []byte("a")}, {Name: ".hidden", Data: []byte("x")}}
	if err := WriteArchive(&buf, []byte(`{}`), images); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, got, err := ReadArchive(buf.Bytes())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(doc) != `{}` {
		t.Fatalf("unexpected document %q", doc)
	}
	if diff := cmp.Diff([]Image{{Name: "a.jpg", Data: []byte("a")}}, got); diff != "" {
		t.Fatalf("images mismatch (-want +got):\n%s", diff)
	}
	if _, _, err := ReadArchive([]byte("PK\x03\x04garbage")); err == nil {
		t.Fatal("expected error for a corrupt archive")
	}
}

func TestFrequencyClampsExtremeValues(t *testing.T) {
	huge, tiny, inf := 1e300, -1e300, math.Inf(1)
	nan := math.NaN()
	tests := []struct {
		raw  *float64
		want int
	}{
		{nil, 0},
		{&nan, 0},
		{&inf, 0},
		{&huge, maxFrequencyDays},
		{&tiny, -maxFrequencyDays},
	}
	for _, tt := range tests {
		if got := frequency(tt.raw); got != tt.want {
			t.Fatalf("frequency(%v) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestArchiveTotalSizeBudget(t *testing.T) {
	var buf bytes.Buffer
	images := []Image{
		{Name: "a.jpg", Data: bytes.Repeat([]byte("a"), 60)},
		{Name: "b.jpg", Data: bytes.Repeat([]byte("b"), 60)},
	}
	if err := WriteArchive(&buf, []byte(`{}`), images); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, got, err := readArchive(buf.Bytes(), 100, 200); err != nil || len(got) != 2 {
		t.Fatalf("within budget: %d images, err=%v", len(got), err)
	}
	_, _, err := readArchive(buf.Bytes(), 100, 100)
	var verr *ValidationError
	if !errors.As(err, &verr) || !strings.Contains(verr.Reason, "exceed 100 bytes") {
		t.Fatalf("expected total budget error, got %v", err)
	}
	_, _, err = readArchive(buf.Bytes(), 50, 1000)
	if !errors.Is(err, ErrInvalidBackup) {
		t.Fatalf("expected oversized entry to be invalid, got %v", err)
	}
}
