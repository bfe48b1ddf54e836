package mongostore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"garden-planner/internal/model"
)

func TestDateTimeZero(t *testing.T) {
	if got := toDateTime(time.Time{}); got != 0 {
		t.Fatalf("zero time encoded as %d", got)
	}
	if got := fromDateTime(0); !got.IsZero() {
		t.Fatalf("0 decoded as %v", got)
	}
	local := time.Date(2024, time.May, 14, 9, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	back := fromDateTime(toDateTime(local))
	if !back.Equal(local) || back.Location() != time.UTC {
		t.Fatalf("round trip gave %v", back)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	at := time.Date(2024, time.May, 14, 9, 30, 0, 0, time.UTC)
	plantID := "p1"

	tmpl := model.TaskTemplate{
		ID: "t1", UserID: "u1", PlantID: &plantID, Kind: model.TaskFertilise,
		FrequencyDays: 14, NextDueAt: at, Enabled: true, PreferredTime: model.Evening,
		Revision: 3, CreatedAt: at, UpdatedAt: at,
	}
	if diff := cmp.Diff(tmpl, templateToDoc(&tmpl).model()); diff != "" {
		t.Fatalf("template mismatch (-want +got):\n%s", diff)
	}

	entry := model.TaskLog{ID: "l1", UserID: "u1", TemplateID: "t1", Kind: model.TaskWater, DoneAt: at, Notes: "soaked", CreatedAt: at}
	if diff := cmp.Diff(entry, logToDoc(&entry).model()); diff != "" {
		t.Fatalf("log mismatch (-want +got):\n%s", diff)
	}

	plant := model.Plant{
		ID: "p1", UserID: "u1", Name: "Rose", Species: "Rosa", PhotoURI: "rose.jpg",
		Care:      model.CareSchedule{AutoGenerate: true, WaterEveryDays: 2, PruneEveryDays: 30},
		CreatedAt: at, UpdatedAt: at,
	}
	if diff := cmp.Diff(plant, plantToDoc(&plant).model()); diff != "" {
		t.Fatalf("plant mismatch (-want +got):\n%s", diff)
	}

	note := model.JournalEntry{ID: "j1", UserID: "u1", PlantID: &plantID, Title: "Buds", Photos: []string{"buds.jpg"}, EntryDate: at, CreatedAt: at}
	if diff := cmp.Diff(note, journalToDoc(&note).model()); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplateDocFieldNames(t *testing.T) {
	raw, err := bson.Marshal(templateToDoc(&model.TaskTemplate{ID: "t1", UserID: "u1", Kind: model.TaskWater}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"id", "user_id", "plant_id", "task_type", "frequency_days", "next_due_at", "enabled", "revision"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing field %q in %v", key, fields)
		}
	}
	if _, ok := fields["preferred_time"]; ok {
		t.Fatal("empty preferred_time should be omitted")
	}
}

func TestWrap(t *testing.T) {
	if wrap("get", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
	if err := wrap("get plant", fmt.Errorf("decode: %w", mongo.ErrNoDocuments)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	denied := wrap("list plants", mongo.CommandError{Code: codeUnauthorized, Message: "not authorized"})
	if !errors.Is(denied, model.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", denied)
	}
	other := errors.New("socket closed")
	if err := wrap("ping", other); !errors.Is(err, other) || errors.Is(err, model.ErrPermissionDenied) {
		t.Fatalf("unexpected wrapping %v", err)
	}
}

func TestSortBy(t *testing.T) {
	opts := sortBy("-entry_date", "name")
	want := bson.D{{Key: "entry_date", Value: -1}, {Key: "name", Value: 1}}
	if diff := cmp.Diff(want, opts.Sort); diff != "" {
		t.Fatalf("sort mismatch (-want +got):\n%s", diff)
	}
}
