// Package backup exports a user's garden to a JSON snapshot or a zip archive
// with pictures, and imports such backups by merging or replacing data.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"garden-planner/internal/model"
	"garden-planner/internal/photos"
	"garden-planner/internal/repository"
	"garden-planner/internal/resilience"
)

// ErrPickerCancelled is returned by a Picker when the user closed it without
// choosing a file. Import turns it into a cancelled Result.
var ErrPickerCancelled = errors.New("backup: file selection cancelled")

// Picker supplies the raw bytes of the backup chosen by the user.
type Picker func(ctx context.Context) ([]byte, error)

type Mode string

const (
	ModeMerge      Mode = "merge"
	ModeReplace    Mode = "replace"
	ModeImagesOnly Mode = "images"
)

func ParseMode(raw string) (Mode, error) {
	switch m := Mode(raw); m {
	case ModeMerge, ModeReplace, ModeImagesOnly:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown import mode %q", model.ErrInvalidInput, raw)
}

type ExportKind string

const (
	ExportData       ExportKind = "data"
	ExportDataImages ExportKind = "full"
	ExportImages     ExportKind = "images"
)

func ParseExportKind(raw string) (ExportKind, error) {
	switch k := ExportKind(raw); k {
	case ExportData, ExportDataImages, ExportImages:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown export kind %q", model.ErrInvalidInput, raw)
}

// Result counts the records and images an import actually wrote.
type Result struct {
	Plants    int  `json:"plants"`
	Tasks     int  `json:"tasks"`
	TaskLogs  int  `json:"taskLogs"`
	Journal   int  `json:"journal"`
	Images    int  `json:"images,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}

// Export is a finished backup ready to be written or sent.
type Export struct {
	Name    string
	Data    []byte
	Archive bool
}

type Service struct {
	store  repository.Store
	guard  *resilience.Guard
	photos *photos.Library
	fs     afero.Fs
	loc    *time.Location
	now    func() time.Time
	logger *log.Logger
}

// NewService builds the backup engine. fs receives export files; library may
// be nil, in which case backups carry no pictures.
func NewService(store repository.Store, guard *resilience.Guard, library *photos.Library, fs afero.Fs, loc *time.Location, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:  store,
		guard:  guard,
		photos: library,
		fs:     fs,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Export reads the user's data from the remote store and packs it.
func (s *Service) Export(ctx context.Context, user *model.User, kind ExportKind) (*Export, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	snap, err := s.collect(ctx, userID)
	if err != nil {
		return nil, err
	}

	stamp := snap.ExportedAt.In(s.loc).Format("20060102-150405")
	switch kind {
	case ExportData:
		data, err := Encode(snap)
		if err != nil {
			return nil, err
		}
		return &Export{Name: fmt.Sprintf("garden-backup-%s.json", stamp), Data: data}, nil
	case ExportDataImages, ExportImages:
		var doc []byte
		if kind == ExportDataImages {
			if doc, err = Encode(snap); err != nil {
				return nil, err
			}
		}
		var buf bytes.Buffer
		if err := WriteArchive(&buf, doc, s.collectImages(ctx, snap)); err != nil {
			return nil, err
		}
		return &Export{Name: fmt.Sprintf("garden-backup-%s.zip", stamp), Data: buf.Bytes(), Archive: true}, nil
	}
	return nil, fmt.Errorf("%w: unknown export kind %q", model.ErrInvalidInput, kind)
}

// ExportToFile writes an export into dir and returns the file path.
func (s *Service) ExportToFile(ctx context.Context, user *model.User, kind ExportKind, dir string) (string, error) {
	exp, err := s.Export(ctx, user, kind)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, exp.Name)
	if err := afero.WriteFile(s.fs, path, exp.Data, 0o644); err != nil {
		return "", fmt.Errorf("write export %q: %w", path, err)
	}
	s.logger.Printf("[info] exported %s backup to %s", kind, path)
	return path, nil
}

func (s *Service) collect(ctx context.Context, userID string) (*Snapshot, error) {
	plants, err := resilience.Call(ctx, s.guard, "export plants", func(ctx context.Context) ([]model.Plant, error) {
		return s.store.Plants().List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	tasks, err := resilience.Call(ctx, s.guard, "export templates", func(ctx context.Context) ([]model.TaskTemplate, error) {
		return s.store.Templates().List(ctx, userID, repository.TemplateFilter{})
	})
	if err != nil {
		return nil, err
	}
	logs, err := resilience.Call(ctx, s.guard, "export task logs", func(ctx context.Context) ([]model.TaskLog, error) {
		return s.store.Logs().List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	journal, err := resilience.Call(ctx, s.guard, "export journal", func(ctx context.Context) ([]model.JournalEntry, error) {
		return s.store.Journal().List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ExportedAt: s.now(),
		Plants:     plants,
		Tasks:      tasks,
		TaskLogs:   logs,
		Journal:    journal,
	}, nil
}

// collectImages reads every picture referenced by the snapshot. Pictures that
// can no longer be found are skipped with a warning.
func (s *Service) collectImages(ctx context.Context, snap *Snapshot) []Image {
	if s.photos == nil {
		return nil
	}
	refs := map[string]string{}
	add := func(uri string) {
		if name := photos.BaseName(uri); name != "" {
			if _, seen := refs[name]; !seen {
				refs[name] = uri
			}
		}
	}
	for _, p := range snap.Plants {
		add(p.PhotoURI)
	}
	for _, e := range snap.Journal {
		for _, uri := range e.Photos {
			add(uri)
		}
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	images := make([]Image, 0, len(names))
	for _, name := range names {
		f, err := s.photos.Open(ctx, refs[name])
		if err != nil {
			s.logger.Printf("[warn] skip picture %s: %v", name, err)
			continue
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.logger.Printf("[warn] skip picture %s: %v", name, err)
			continue
		}
		images = append(images, Image{Name: name, Data: data})
	}
	return images
}

// Import asks pick for a backup and imports it. Closing the picker yields
// Result{Cancelled: true} and no error.
func (s *Service) Import(ctx context.Context, user *model.User, mode Mode, pick Picker) (Result, error) {
	if _, err := model.RequireUser(user); err != nil {
		return Result{}, err
	}
	data, err := pick(ctx)
	if errors.Is(err, ErrPickerCancelled) {
		return Result{Cancelled: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read backup: %w", err)
	}
	return s.ImportData(ctx, user, mode, data)
}

// ImportData imports a JSON snapshot or a zip archive. The whole snapshot is
// validated before the first write.
func (s *Service) ImportData(ctx context.Context, user *model.User, mode Mode, data []byte) (Result, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return Result{}, err
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return Result{}, err
	}

	doc := data
	var images []Image
	archive := IsArchive(data)
	if archive {
		doc, images, err = ReadArchive(data)
		if err != nil {
			return Result{}, err
		}
	}

	if mode == ModeImagesOnly {
		if !archive {
			return Result{}, invalid("archive", "images-only import needs a zip archive")
		}
		written, err := s.writeImages(images)
		return Result{Images: len(written)}, err
	}

	if doc == nil {
		return Result{}, invalid(snapshotEntry, "missing from archive")
	}
	snap, err := Decode(doc, s.loc)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if len(images) > 0 {
		written, err := s.writeImages(images)
		res.Images = len(written)
		if err != nil {
			return res, err
		}
		relinkPhotos(snap, written)
	}

	var applied Result
	switch mode {
	case ModeMerge:
		applied, err = s.merge(ctx, userID, snap)
	case ModeReplace:
		applied, err = s.replace(ctx, userID, snap)
	}
	applied.Images = res.Images
	if err != nil {
		return applied, err
	}
	s.logger.Printf("[info] imported backup for user %s (%s): %d plants, %d tasks, %d logs, %d journal, %d images",
		userID, mode, applied.Plants, applied.Tasks, applied.TaskLogs, applied.Journal, applied.Images)
	return applied, nil
}

// writeImages stores archive pictures in the photo library, replacing files
// with the same name. It returns the stored path per file name.
func (s *Service) writeImages(images []Image) (map[string]string, error) {
	written := make(map[string]string, len(images))
	if len(images) == 0 {
		return written, nil
	}
	if s.photos == nil {
		return written, errors.New("backup: no photo library configured")
	}
	for _, img := range images {
		path, err := s.photos.Save(img.Name, bytes.NewReader(img.Data))
		if errors.Is(err, photos.ErrInvalidName) {
			s.logger.Printf("[warn] skip picture with bad name %q", img.Name)
			continue
		}
		if err != nil {
			return written, err
		}
		written[img.Name] = path
	}
	return written, nil
}

// relinkPhotos points picture references at the files restored from the
// archive, matching by file name.
func relinkPhotos(snap *Snapshot, written map[string]string) {
	relink := func(uri string) string {
		if path, ok := written[photos.BaseName(uri)]; ok {
			return path
		}
		return uri
	}
	for i := range snap.Plants {
		if snap.Plants[i].PhotoURI != "" {
			snap.Plants[i].PhotoURI = relink(snap.Plants[i].PhotoURI)
		}
	}
	for i := range snap.Journal {
		for j, uri := range snap.Journal[i].Photos {
			snap.Journal[i].Photos[j] = relink(uri)
		}
	}
}

// merge inserts every record whose id the user does not have yet. Existing
// records are never touched.
func (s *Service) merge(ctx context.Context, userID string, snap *Snapshot) (Result, error) {
	var res Result
	now := s.now().UTC()

	for i := range snap.Plants {
		p := snap.Plants[i]
		inserted, err := s.insertIfAbsent(ctx, "plant", p.ID,
			func(ctx context.Context) (bool, error) { return s.store.Plants().Exists(ctx, userID, p.ID) },
			func(ctx context.Context) error {
				p.UserID = userID
				stamp(&p.CreatedAt, now)
				return s.store.Plants().Create(ctx, &p)
			})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Plants++
		}
	}
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		inserted, err := s.insertIfAbsent(ctx, "template", t.ID,
			func(ctx context.Context) (bool, error) { return s.store.Templates().Exists(ctx, userID, t.ID) },
			func(ctx context.Context) error {
				t.UserID = userID
				t.Revision = 0
				stamp(&t.CreatedAt, now)
				return s.store.Templates().Create(ctx, &t)
			})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Tasks++
		}
	}
	for i := range snap.TaskLogs {
		l := snap.TaskLogs[i]
		inserted, err := s.insertIfAbsent(ctx, "task log", l.ID,
			func(ctx context.Context) (bool, error) { return s.store.Logs().Exists(ctx, userID, l.ID) },
			func(ctx context.Context) error {
				l.UserID = userID
				stamp(&l.CreatedAt, now)
				return s.store.Logs().Create(ctx, &l)
			})
		if err != nil {
			return res, err
		}
		if inserted {
			res.TaskLogs++
		}
	}
	for i := range snap.Journal {
		e := snap.Journal[i]
		inserted, err := s.insertIfAbsent(ctx, "journal entry", e.ID,
			func(ctx context.Context) (bool, error) { return s.store.Journal().Exists(ctx, userID, e.ID) },
			func(ctx context.Context) error {
				e.UserID = userID
				stamp(&e.CreatedAt, now)
				stamp(&e.EntryDate, e.CreatedAt)
				return s.store.Journal().Create(ctx, &e)
			})
		if err != nil {
			return res, err
		}
		if inserted {
			res.Journal++
		}
	}
	return res, nil
}

func (s *Service) insertIfAbsent(ctx context.Context, what, id string, exists func(context.Context) (bool, error), create func(context.Context) error) (bool, error) {
	found, err := resilience.Call(ctx, s.guard, "check "+what+" "+id, exists)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := s.guard.Do(ctx, "import "+what+" "+id, create); err != nil {
		return false, err
	}
	return true, nil
}

// replace deletes the user's data and inserts the snapshot under fresh ids.
// References between records are remapped to the new ids.
func (s *Service) replace(ctx context.Context, userID string, snap *Snapshot) (Result, error) {
	var res Result
	now := s.now().UTC()

	wipes := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"delete task logs", s.store.Logs().DeleteAll},
		{"delete templates", s.store.Templates().DeleteAll},
		{"delete journal", s.store.Journal().DeleteAll},
		{"delete plants", s.store.Plants().DeleteAll},
	}
	for _, w := range wipes {
		if err := s.guard.Do(ctx, w.name, func(ctx context.Context) error { return w.fn(ctx, userID) }); err != nil {
			return res, err
		}
	}

	plantIDs := make(map[string]string, len(snap.Plants))
	for _, p := range snap.Plants {
		plantIDs[p.ID] = uuid.NewString()
	}
	templateIDs := make(map[string]string, len(snap.Tasks))
	for _, t := range snap.Tasks {
		templateIDs[t.ID] = uuid.NewString()
	}
	remap := func(ids map[string]string, ref *string) *string {
		if ref == nil {
			return nil
		}
		if id, ok := ids[*ref]; ok {
			return &id
		}
		v := *ref
		return &v
	}

	for i := range snap.Plants {
		p := snap.Plants[i]
		p.ID = plantIDs[p.ID]
		p.UserID = userID
		stamp(&p.CreatedAt, now)
		if err := s.guard.Do(ctx, "restore plant", func(ctx context.Context) error { return s.store.Plants().Create(ctx, &p) }); err != nil {
			return res, err
		}
		res.Plants++
	}
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		t.ID = templateIDs[t.ID]
		t.UserID = userID
		t.PlantID = remap(plantIDs, t.PlantID)
		t.Revision = 0
		stamp(&t.CreatedAt, now)
		if err := s.guard.Do(ctx, "restore template", func(ctx context.Context) error { return s.store.Templates().Create(ctx, &t) }); err != nil {
			return res, err
		}
		res.Tasks++
	}
	for i := range snap.TaskLogs {
		l := snap.TaskLogs[i]
		l.ID = uuid.NewString()
		l.UserID = userID
		if id, ok := templateIDs[l.TemplateID]; ok {
			l.TemplateID = id
		}
		l.PlantID = remap(plantIDs, l.PlantID)
		stamp(&l.CreatedAt, now)
		if err := s.guard.Do(ctx, "restore task log", func(ctx context.Context) error { return s.store.Logs().Create(ctx, &l) }); err != nil {
			return res, err
		}
		res.TaskLogs++
	}
	for i := range snap.Journal {
		e := snap.Journal[i]
		e.ID = uuid.NewString()
		e.UserID = userID
		e.PlantID = remap(plantIDs, e.PlantID)
		stamp(&e.CreatedAt, now)
		stamp(&e.EntryDate, e.CreatedAt)
		if err := s.guard.Do(ctx, "restore journal entry", func(ctx context.Context) error { return s.store.Journal().Create(ctx, &e) }); err != nil {
			return res, err
		}
		res.Journal++
	}
	return res, nil
}

func stamp(t *time.Time, now time.Time) {
	if t.IsZero() {
		*t = now
	}
}
