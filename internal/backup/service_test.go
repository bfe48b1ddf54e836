package backup

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"garden-planner/internal/model"
	"garden-planner/internal/photos"
	"garden-planner/internal/repository"
	"garden-planner/internal/repository/memstore"
	"garden-planner/internal/resilience"
)

var testNow = time.Date(2024, time.May, 14, 15, 30, 0, 0, time.UTC)

type fixture struct {
	store   *memstore.Store
	fs      afero.Fs
	library *photos.Library
	svc     *Service
	user    *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	library, err := photos.NewLibrary(fs, "/photos", nil, time.Second)
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	logger := log.New(&bytes.Buffer{}, "", 0)
	store := memstore.New()
	guard := resilience.New(resilience.Policy{Timeout: time.Second}, nil, logger, model.ErrNotFound, model.ErrConflict)
	svc := NewService(store, guard, library, fs, time.UTC, logger)
	svc.now = func() time.Time { return testNow }
	return &fixture{store: store, fs: fs, library: library, svc: svc, user: &model.User{ID: "user-1"}}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	rose := "rose"
	water := "water-rose"
	plants := []model.Plant{
		{ID: "rose", UserID: f.user.ID, Name: "Rose", PhotoURI: "file:///device/DCIM/rose.jpg", Care: model.CareSchedule{AutoGenerate: true, WaterEveryDays: 2}},
		{ID: "fern", UserID: f.user.ID, Name: "Fern"},
	}
	for i := range plants {
		if err := f.store.Plants().Create(ctx, &plants[i]); err != nil {
			t.Fatalf("seed plant: %v", err)
		}
	}
	tmpl := model.TaskTemplate{ID: water, UserID: f.user.ID, PlantID: &rose, Kind: model.TaskWater, FrequencyDays: 2, NextDueAt: testNow, Enabled: true}
	if err := f.store.Templates().Create(ctx, &tmpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	general := model.TaskTemplate{ID: "mulch", UserID: f.user.ID, Kind: model.TaskMulch, NextDueAt: testNow, Enabled: true}
	if err := f.store.Templates().Create(ctx, &general); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	entry := model.TaskLog{ID: "log-1", UserID: f.user.ID, TemplateID: water, PlantID: &rose, Kind: model.TaskWater, DoneAt: testNow.Add(-48 * time.Hour)}
	if err := f.store.Logs().Create(ctx, &entry); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	note := model.JournalEntry{ID: "j-1", UserID: f.user.ID, PlantID: &rose, Title: "Buds", Photos: []string{"rose.jpg"}, EntryDate: testNow}
	if err := f.store.Journal().Create(ctx, &note); err != nil {
		t.Fatalf("seed journal: %v", err)
	}
	if _, err := f.library.Save("rose.jpg", strings.NewReader("rose-bytes")); err != nil {
		t.Fatalf("seed photo: %v", err)
	}
}

type counts struct{ plants, tasks, logs, journal int }

func (f *fixture) counts(t *testing.T) counts {
	t.Helper()
	ctx := context.Background()
	plants, err := f.store.Plants().List(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("list plants: %v", err)
	}
	tasks, err := f.store.Templates().List(ctx, f.user.ID, repository.TemplateFilter{})
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	logs, err := f.store.Logs().List(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	journal, err := f.store.Journal().List(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}
	return counts{len(plants), len(tasks), len(logs), len(journal)}
}

func TestReplaceRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	before := f.counts(t)

	exp, err := f.svc.Export(ctx, f.user, ExportData)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Archive || !strings.HasSuffix(exp.Name, ".json") {
		t.Fatalf("unexpected export %s archive=%t", exp.Name, exp.Archive)
	}

	res, err := f.svc.ImportData(ctx, f.user, ModeReplace, exp.Data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	want := Result{Plants: 2, Tasks: 2, TaskLogs: 1, Journal: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if after := f.counts(t); after != before {
		t.Fatalf("counts changed: before %+v after %+v", before, after)
	}

	// References follow the fresh ids.
	plants, _ := f.store.Plants().List(ctx, f.user.ID)
	var roseID string
	for _, p := range plants {
		if p.ID == "rose" || p.ID == "fern" {
			t.Fatalf("replace must assign fresh ids, kept %s", p.ID)
		}
		if p.Name == "Rose" {
			roseID = p.ID
		}
	}
	tasks, _ := f.store.Templates().List(ctx, f.user.ID, repository.TemplateFilter{PlantID: roseID})
	if len(tasks) != 1 {
		t.Fatalf("expected rose template to follow the new plant id, got %+v", tasks)
	}
	logs, _ := f.store.Logs().List(ctx, f.user.ID)
	if logs[0].TemplateID != tasks[0].ID || *logs[0].PlantID != roseID {
		t.Fatalf("log references not remapped: %+v", logs[0])
	}
}

func TestMergeNeverOverwritesOrDuplicates(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	exp, err := f.svc.Export(ctx, f.user, ExportData)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	// Local edit after the export must survive the merge.
	disabled := false
	if err := f.store.Templates().Update(ctx, f.user.ID, "mulch", model.TemplatePatch{Enabled: &disabled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := f.counts(t)

	res, err := f.svc.ImportData(ctx, f.user, ModeMerge, exp.Data)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if diff := cmp.Diff(Result{}, res); diff != "" {
		t.Fatalf("merge of identical data inserted records (-want +got):\n%s", diff)
	}
	if after := f.counts(t); after != before {
		t.Fatalf("counts changed: before %+v after %+v", before, after)
	}
	mulch, err := f.store.Templates().Get(ctx, f.user.ID, "mulch")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mulch.Enabled {
		t.Fatal("merge overwrote an existing template")
	}
}

func TestMergeInsertsNewRecordsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := `{
		"plants": [{"id": "p1", "user_id": "someone-else", "name": "Mint", "care_schedule": {"auto_generate": false}}],
		"tasks": [{"id": "t1", "plant_id": "p1", "task_type": "fertilize", "frequency_days": 7.0, "next_due_at": "2024-05-20"}],
		"journal": []
	}`
	res, err := f.svc.ImportData(ctx, f.user, ModeMerge, []byte(doc))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if res.Plants != 1 || res.Tasks != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	plant, err := f.store.Plants().Get(ctx, f.user.ID, "p1")
	if err != nil {
		t.Fatalf("plant not stamped with importing user: %v", err)
	}
	if plant.UserID != f.user.ID {
		t.Fatalf("unexpected owner %q", plant.UserID)
	}
	tmpl, err := f.store.Templates().Get(ctx, f.user.ID, "t1")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if tmpl.Kind != model.TaskFertilise || tmpl.FrequencyDays != 7 || !tmpl.Enabled {
		t.Fatalf("unexpected template %+v", tmpl)
	}
	if !tmpl.NextDueAt.Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due %s", tmpl.NextDueAt)
	}
}

func TestValidationFailsBeforeAnyWrite(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing tasks", `{"plants": [{"id": "p1", "name": "Rose"}], "journal": [{"id": "j1", "title": "x"}]}`, "tasks"},
		{"tasks not array", `{"plants": [], "tasks": {"id": "t1"}, "journal": []}`, "tasks"},
		{"null plants", `{"plants": null, "tasks": [], "journal": []}`, "plants"},
		{"bad kind", `{"plants": [], "tasks": [{"id": "t1", "task_type": "sing", "next_due_at": "2024-01-01"}], "journal": []}`, "tasks[0].task_type"},
		{"bad due", `{"plants": [], "tasks": [{"id": "t1", "task_type": "water", "next_due_at": "soon"}], "journal": []}`, "tasks[0].next_due_at"},
		{"missing id", `{"plants": [{"name": "Rose"}], "tasks": [], "journal": []}`, "plants[0]"},
		{"logs not array", `{"plants": [], "tasks": [], "journal": [], "taskLogs": "none"}`, "taskLogs"},
		{"not an object", `[1, 2, 3]`, "document"},
		{"duplicate plant", `{"plants": [{"id": "p1"}, {"id": "p1"}], "tasks": [], "journal": []}`, "plants[1]"},
		{"duplicate task", `{"plants": [], "tasks": [{"id": "t1", "task_type": "water", "next_due_at": "2024-01-01"}, {"id": "t1", "task_type": "prune", "next_due_at": "2024-01-01"}], "journal": []}`, "tasks[1]"},
		{"duplicate log", `{"plants": [], "tasks": [], "journal": [], "taskLogs": [{"id": "l1", "task_id": "t1", "task_type": "water", "done_at": "2024-01-01"}, {"id": "l1", "task_id": "t1", "task_type": "water", "done_at": "2024-01-02"}]}`, "taskLogs[1]"},
		{"duplicate journal", `{"plants": [], "tasks": [], "journal": [{"id": "j1", "title": "a"}, {"id": "j1", "title": "b"}]}`, "journal[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, mode := range []Mode{ModeMerge, ModeReplace} {
				_, err := f.svc.ImportData(context.Background(), f.user, mode, []byte(tt.doc))
				if !errors.Is(err, ErrInvalidBackup) {
					t.Fatalf("%s: expected ErrInvalidBackup, got %v", mode, err)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) || verr.Field != tt.field {
					t.Fatalf("%s: expected field %q, got %v", mode, tt.field, err)
				}
			}
			if w := f.store.Writes(); w != 0 {
				t.Fatalf("expected no writes, got %d", w)
			}
		})
	}
}

func TestReplaceValidationKeepsExistingData(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	before := f.counts(t)
	_, err := f.svc.ImportData(context.Background(), f.user, ModeReplace, []byte(`{"plants": [], "journal": []}`))
	if !errors.Is(err, ErrInvalidBackup) {
		t.Fatalf("expected ErrInvalidBackup, got %v", err)
	}
	if after := f.counts(t); after != before {
		t.Fatalf("invalid backup deleted data: before %+v after %+v", before, after)
	}
}

func TestReplaceWithDuplicateIDsKeepsExistingData(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	before := f.counts(t)
	doc := `{"plants": [{"id": "p1", "name": "Rose"}, {"id": "p1", "name": "Rose again"}], "tasks": [], "journal": []}`
	_, err := f.svc.ImportData(context.Background(), f.user, ModeReplace, []byte(doc))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "plants[1]" || !strings.Contains(verr.Reason, "duplicate id") {
		t.Fatalf("expected a duplicate id validation error, got %v", err)
	}
	if after := f.counts(t); after != before {
		t.Fatalf("rejected backup deleted data: before %+v after %+v", before, after)
	}
}

func TestArchiveImportRelinksPhotos(t *testing.T) {
	src := newFixture(t)
	src.seed(t)
	ctx := context.Background()
	exp, err := src.svc.Export(ctx, src.user, ExportDataImages)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !exp.Archive || !IsArchive(exp.Data) {
		t.Fatal("expected a zip archive")
	}

	dst := newFixture(t)
	res, err := dst.svc.ImportData(ctx, dst.user, ModeMerge, exp.Data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Images != 1 || res.Plants != 2 || res.Journal != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	body, err := afero.ReadFile(dst.fs, "/photos/rose.jpg")
	if err != nil || string(body) != "rose-bytes" {
		t.Fatalf("photo not restored: %q %v", body, err)
	}
	rose, err := dst.store.Plants().Get(ctx, dst.user.ID, "rose")
	if err != nil {
		t.Fatalf("get plant: %v", err)
	}
	if rose.PhotoURI != "/photos/rose.jpg" {
		t.Fatalf("photo reference not relinked: %q", rose.PhotoURI)
	}
}

func TestImagesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.library.Save("fern.png", strings.NewReader("old")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var buf bytes.Buffer
	images := []Image{{Name: "fern.png", Data: []byte("new")}, {Name: "tulip.png", Data: []byte("tulip")}}
	if err := WriteArchive(&buf, nil, images); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	res, err := f.svc.ImportData(ctx, f.user, ModeImagesOnly, buf.Bytes())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if diff := cmp.Diff(Result{Images: 2}, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	body, _ := afero.ReadFile(f.fs, "/photos/fern.png")
	if string(body) != "new" {
		t.Fatalf("expected overwrite, got %q", body)
	}
	if w := f.store.Writes(); w != 0 {
		t.Fatalf("images-only import touched data: %d writes", w)
	}

	if _, err := f.svc.ImportData(ctx, f.user, ModeImagesOnly, []byte(`{"plants": []}`)); !errors.Is(err, ErrInvalidBackup) {
		t.Fatalf("expected ErrInvalidBackup for plain JSON, got %v", err)
	}
}

func TestImagesOnlyExport(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	exp, err := f.svc.Export(context.Background(), f.user, ExportImages)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	doc, images, err := ReadArchive(exp.Data)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if doc != nil {
		t.Fatal("images-only export must not carry data")
	}
	if len(images) != 1 || images[0].Name != "rose.jpg" {
		t.Fatalf("unexpected images %+v", images)
	}
}

func TestExportSkipsFilesOutsideLibrary(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	if err := afero.WriteFile(f.fs, "/home/u/.ssh/id_rsa", []byte("secret"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	note := model.JournalEntry{ID: "j-2", UserID: f.user.ID, Title: "Leak", Photos: []string{"/home/u/.ssh/id_rsa"}, EntryDate: testNow}
	if err := f.store.Journal().Create(ctx, &note); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	exp, err := f.svc.Export(ctx, f.user, ExportImages)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	_, images, err := ReadArchive(exp.Data)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(images) != 1 || images[0].Name != "rose.jpg" {
		t.Fatalf("expected only the library picture, got %+v", images)
	}
}

func TestImportCancelled(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Import(context.Background(), f.user, ModeMerge, func(context.Context) ([]byte, error) {
		return nil, ErrPickerCancelled
	})
	if err != nil {
		t.Fatalf("cancel must not be an error, got %v", err)
	}
	if !res.Cancelled {
		t.Fatal("expected cancelled result")
	}
}

func TestImportRequiresUser(t *testing.T) {
	f := newFixture(t)
	picked := false
	_, err := f.svc.Import(context.Background(), nil, ModeMerge, func(context.Context) ([]byte, error) {
		picked = true
		return nil, nil
	})
	if !errors.Is(err, model.ErrNotAuthenticated) || picked {
		t.Fatalf("expected ErrNotAuthenticated before picking, got %v picked=%t", err, picked)
	}
	if _, err := f.svc.Export(context.Background(), &model.User{}, ExportData); !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestExportToFile(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	path, err := f.svc.ExportToFile(context.Background(), f.user, ExportData, "/exports")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if path != "/exports/garden-backup-20240514-153000.json" {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	snap, err := Decode(data, time.UTC)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(snap.Plants) != 2 || len(snap.Tasks) != 2 || len(snap.TaskLogs) != 1 || len(snap.Journal) != 1 {
		t.Fatalf("unexpected snapshot sizes %+v", snap)
	}
}
