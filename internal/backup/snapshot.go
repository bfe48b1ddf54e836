package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"garden-planner/internal/model"
)

// SnapshotVersion is written into every export.
const SnapshotVersion = 1

// Top-level keys of a snapshot document.
const (
	keyPlants   = "plants"
	keyTasks    = "tasks"
	keyTaskLogs = "taskLogs"
	keyJournal  = "journal"
)

var ErrInvalidBackup = errors.New("backup: invalid backup")

// ValidationError describes why a snapshot was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid backup: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidBackup
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Snapshot is one point-in-time export of a user's garden. Records carry no
// owner; they are stamped with the importing user.
type Snapshot struct {
	ExportedAt time.Time
	Plants     []model.Plant
	Tasks      []model.TaskTemplate
	TaskLogs   []model.TaskLog
	Journal    []model.JournalEntry
}

type document struct {
	Version    int             `json:"version"`
	ExportedAt string          `json:"exported_at"`
	Plants     []plantRecord   `json:"plants"`
	Tasks      []taskRecord    `json:"tasks"`
	TaskLogs   []logRecord     `json:"taskLogs"`
	Journal    []journalRecord `json:"journal"`
}

type plantRecord struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Species   string             `json:"species,omitempty"`
	Location  string             `json:"location,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	PhotoURI  string             `json:"photo_uri,omitempty"`
	Care      model.CareSchedule `json:"care_schedule"`
	CreatedAt string             `json:"created_at,omitempty"`
	UpdatedAt string             `json:"updated_at,omitempty"`
}

type taskRecord struct {
	ID            string   `json:"id"`
	PlantID       *string  `json:"plant_id"`
	TaskType      string   `json:"task_type"`
	FrequencyDays *float64 `json:"frequency_days"`
	NextDueAt     string   `json:"next_due_at"`
	Enabled       *bool    `json:"enabled"`
	PreferredTime string   `json:"preferred_time,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

type logRecord struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	PlantID     *string `json:"plant_id"`
	TaskType    string  `json:"task_type"`
	DoneAt      string  `json:"done_at"`
	Notes       string  `json:"notes,omitempty"`
	ProductUsed string  `json:"product_used,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

type journalRecord struct {
	ID        string   `json:"id"`
	PlantID   *string  `json:"plant_id"`
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Photos    []string `json:"photos,omitempty"`
	EntryDate string   `json:"entry_date"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// Encode renders s as an indented JSON document.
func Encode(s *Snapshot) ([]byte, error) {
	doc := document{
		Version:    SnapshotVersion,
		ExportedAt: model.ToWireTimestamp(s.ExportedAt),
		Plants:     make([]plantRecord, 0, len(s.Plants)),
		Tasks:      make([]taskRecord, 0, len(s.Tasks)),
		TaskLogs:   make([]logRecord, 0, len(s.TaskLogs)),
		Journal:    make([]journalRecord, 0, len(s.Journal)),
	}
	for _, p := range s.Plants {
		doc.Plants = append(doc.Plants, plantRecord{
			ID:        p.ID,
			Name:      p.Name,
			Species:   p.Species,
			Location:  p.Location,
			Notes:     p.Notes,
			PhotoURI:  p.PhotoURI,
			Care:      p.Care,
			CreatedAt: model.ToWireTimestamp(p.CreatedAt),
			UpdatedAt: model.ToWireTimestamp(p.UpdatedAt),
		})
	}
	for _, t := range s.Tasks {
		freq := float64(t.FrequencyDays)
		enabled := t.Enabled
		doc.Tasks = append(doc.Tasks, taskRecord{
			ID:            t.ID,
			PlantID:       t.PlantID,
			TaskType:      string(t.Kind),
			FrequencyDays: &freq,
			NextDueAt:     model.ToWireTimestamp(t.NextDueAt),
			Enabled:       &enabled,
			PreferredTime: string(t.PreferredTime),
			CreatedAt:     model.ToWireTimestamp(t.CreatedAt),
		})
	}
	for _, l := range s.TaskLogs {
		doc.TaskLogs = append(doc.TaskLogs, logRecord{
			ID:          l.ID,
			TaskID:      l.TemplateID,
			PlantID:     l.PlantID,
			TaskType:    string(l.Kind),
			DoneAt:      model.ToWireTimestamp(l.DoneAt),
			Notes:       l.Notes,
			ProductUsed: l.ProductUsed,
			CreatedAt:   model.ToWireTimestamp(l.CreatedAt),
		})
	}
	for _, e := range s.Journal {
		doc.Journal = append(doc.Journal, journalRecord{
			ID:        e.ID,
			PlantID:   e.PlantID,
			Title:     e.Title,
			Body:      e.Body,
			Photos:    e.Photos,
			EntryDate: model.ToWireTimestamp(e.EntryDate),
			CreatedAt: model.ToWireTimestamp(e.CreatedAt),
		})
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return out, nil
}

// Decode parses and validates a snapshot document. Date-only timestamps are
// read in loc. Every record is checked before Decode returns, so a snapshot
// that decodes can be applied without further validation.
func Decode(data []byte, loc *time.Location) (*Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, invalid("document", "not a JSON object: %v", err)
	}
	if top == nil {
		return nil, invalid("document", "not a JSON object")
	}

	for _, key := range []string{keyPlants, keyTasks, keyJournal} {
		raw, ok := top[key]
		if !ok {
			return nil, invalid(key, "missing")
		}
		if !isArray(raw) {
			return nil, invalid(key, "must be an array")
		}
	}
	if raw, ok := top[keyTaskLogs]; ok && !isNull(raw) && !isArray(raw) {
		return nil, invalid(keyTaskLogs, "must be an array")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalid("document", "%v", err)
	}

	snap := &Snapshot{}
	seen := idSet{}
	if doc.ExportedAt != "" {
		if t, err := model.FromWireTimestamp(doc.ExportedAt, loc); err == nil {
			snap.ExportedAt = t
		}
	}

	for i, r := range doc.Plants {
		field := fmt.Sprintf("%s[%d]", keyPlants, i)
		if err := seen.add(keyPlants, field, r.ID); err != nil {
			return nil, err
		}
		created, err := optionalTime(field+".created_at", r.CreatedAt, loc)
		if err != nil {
			return nil, err
		}
		updated, err := optionalTime(field+".updated_at", r.UpdatedAt, loc)
		if err != nil {
			return nil, err
		}
		snap.Plants = append(snap.Plants, model.Plant{
			ID:        r.ID,
			Name:      r.Name,
			Species:   r.Species,
			Location:  r.Location,
			Notes:     r.Notes,
			PhotoURI:  r.PhotoURI,
			Care:      r.Care,
			CreatedAt: created,
			UpdatedAt: updated,
		})
	}

	for i, r := range doc.Tasks {
		field := fmt.Sprintf("%s[%d]", keyTasks, i)
		if err := seen.add(keyTasks, field, r.ID); err != nil {
			return nil, err
		}
		kind, err := model.ParseTaskKind(r.TaskType)
		if err != nil {
			return nil, invalid(field+".task_type", "unknown task kind %q", r.TaskType)
		}
		preferred := model.TimeOfDay(r.PreferredTime)
		if !preferred.Valid() {
			return nil, invalid(field+".preferred_time", "unknown time of day %q", r.PreferredTime)
		}
		if r.NextDueAt == "" {
			return nil, invalid(field+".next_due_at", "missing")
		}
		due, err := model.FromWireTimestamp(r.NextDueAt, loc)
		if err != nil {
			return nil, invalid(field+".next_due_at", "%v", err)
		}
		created, err := optionalTime(field+".created_at", r.CreatedAt, loc)
		if err != nil {
			return nil, err
		}
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		snap.Tasks = append(snap.Tasks, model.TaskTemplate{
			ID:            r.ID,
			PlantID:       nonEmpty(r.PlantID),
			Kind:          kind,
			FrequencyDays: frequency(r.FrequencyDays),
			NextDueAt:     due,
			Enabled:       enabled,
			PreferredTime: preferred,
			CreatedAt:     created,
		})
	}

	for i, r := range doc.TaskLogs {
		field := fmt.Sprintf("%s[%d]", keyTaskLogs, i)
		if err := seen.add(keyTaskLogs, field, r.ID); err != nil {
			return nil, err
		}
		if r.TaskID == "" {
			return nil, invalid(field+".task_id", "missing")
		}
		kind, err := model.ParseTaskKind(r.TaskType)
		if err != nil {
			return nil, invalid(field+".task_type", "unknown task kind %q", r.TaskType)
		}
		if r.DoneAt == "" {
			return nil, invalid(field+".done_at", "missing")
		}
		done, err := model.FromWireTimestamp(r.DoneAt, loc)
		if err != nil {
			return nil, invalid(field+".done_at", "%v", err)
		}
		created, err := optionalTime(field+".created_at", r.CreatedAt, loc)
		if err != nil {
			return nil, err
		}
		snap.TaskLogs = append(snap.TaskLogs, model.TaskLog{
			ID:          r.ID,
			TemplateID:  r.TaskID,
			PlantID:     nonEmpty(r.PlantID),
			Kind:        kind,
			DoneAt:      done,
			Notes:       r.Notes,
			ProductUsed: r.ProductUsed,
			CreatedAt:   created,
		})
	}

	for i, r := range doc.Journal {
		field := fmt.Sprintf("%s[%d]", keyJournal, i)
		if err := seen.add(keyJournal, field, r.ID); err != nil {
			return nil, err
		}
		date, err := optionalTime(field+".entry_date", r.EntryDate, loc)
		if err != nil {
			return nil, err
		}
		created, err := optionalTime(field+".created_at", r.CreatedAt, loc)
		if err != nil {
			return nil, err
		}
		snap.Journal = append(snap.Journal, model.JournalEntry{
			ID:        r.ID,
			PlantID:   nonEmpty(r.PlantID),
			Title:     r.Title,
			Body:      r.Body,
			Photos:    r.Photos,
			EntryDate: date,
			CreatedAt: created,
		})
	}

	return snap, nil
}

// idSet tracks record ids per collection. Ids must be present and unique
// within their collection.
type idSet map[string]map[string]bool

func (s idSet) add(collection, field, id string) error {
	if id == "" {
		return invalid(field, "missing id")
	}
	ids := s[collection]
	if ids == nil {
		ids = make(map[string]bool)
		s[collection] = ids
	}
	if ids[id] {
		return invalid(field, "duplicate id %q", id)
	}
	ids[id] = true
	return nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func optionalTime(field, raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := model.FromWireTimestamp(raw, loc)
	if err != nil {
		return time.Time{}, invalid(field, "%v", err)
	}
	return t, nil
}

// maxFrequencyDays bounds intervals read from backups to a hundred years.
const maxFrequencyDays = 36500

// frequency coerces a missing or non-integral interval to whole days; absent
// means one-time.
func frequency(raw *float64) int {
	if raw == nil || math.IsNaN(*raw) || math.IsInf(*raw, 0) {
		return 0
	}
	switch {
	case *raw > maxFrequencyDays:
		return maxFrequencyDays
	case *raw < -maxFrequencyDays:
		return -maxFrequencyDays
	}
	return int(*raw)
}

func nonEmpty(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}
