package model

import (
	"fmt"
	"time"
)

// TaskKind is the care action a template schedules.
type TaskKind string

const (
	TaskWater     TaskKind = "water"
	TaskFertilise TaskKind = "fertilise"
	TaskPrune     TaskKind = "prune"
	TaskRepot     TaskKind = "repot"
	TaskSpray     TaskKind = "spray"
	TaskMulch     TaskKind = "mulch"
)

// TaskKinds lists every supported kind in display order.
var TaskKinds = []TaskKind{TaskWater, TaskFertilise, TaskPrune, TaskRepot, TaskSpray, TaskMulch}

func (k TaskKind) Valid() bool {
	for _, known := range TaskKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseTaskKind accepts a kind name, tolerating the American spelling of fertilise.
func ParseTaskKind(raw string) (TaskKind, error) {
	kind := TaskKind(raw)
	if raw == "fertilize" {
		kind = TaskFertilise
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown task kind %q", ErrInvalidInput, raw)
	}
	return kind, nil
}

// TimeOfDay is the optional preferred slot for a task.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
)

func (t TimeOfDay) Valid() bool {
	switch t {
	case "", Morning, Afternoon, Evening:
		return true
	}
	return false
}

// TaskTemplate is a recurring or one-time care instruction.
//
// FrequencyDays <= 0 marks a one-time template: completing it disables it
// instead of rescheduling. Revision is bumped on every write and is used as
// the optimistic concurrency token for completions.
type TaskTemplate struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	UserID        string    `gorm:"primaryKey;size:64" json:"user_id"`
	PlantID       *string   `gorm:"index;size:64" json:"plant_id"`
	Kind          TaskKind  `gorm:"not null" json:"task_type"`
	FrequencyDays int       `json:"frequency_days"`
	NextDueAt     time.Time `gorm:"index" json:"next_due_at"`
	Enabled       bool      `gorm:"not null;index" json:"enabled"`
	PreferredTime TimeOfDay `json:"preferred_time,omitempty"`
	Revision      int64     `gorm:"not null" json:"revision,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Frequency returns the schedule interval in days. Anything that is not a
// positive interval reads as a one-time template.
func (t TaskTemplate) Frequency() int {
	if t.FrequencyDays < 0 {
		return 0
	}
	return t.FrequencyDays
}

func (t TaskTemplate) OneTime() bool {
	return t.Frequency() <= 0
}

// General reports whether the template is not attached to a plant.
func (t TaskTemplate) General() bool {
	return t.PlantID == nil || *t.PlantID == ""
}

// TemplatePatch is a partial update of a template. Nil fields are left untouched.
type TemplatePatch struct {
	PlantID       **string
	Kind          *TaskKind
	FrequencyDays *int
	NextDueAt     *time.Time
	Enabled       *bool
	PreferredTime *TimeOfDay
}

func (p TemplatePatch) Empty() bool {
	return p.PlantID == nil && p.Kind == nil && p.FrequencyDays == nil &&
		p.NextDueAt == nil && p.Enabled == nil && p.PreferredTime == nil
}

// Apply copies the patched fields onto t.
func (p TemplatePatch) Apply(t *TaskTemplate) {
	if p.PlantID != nil {
		t.PlantID = *p.PlantID
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.FrequencyDays != nil {
		t.FrequencyDays = *p.FrequencyDays
	}
	if p.NextDueAt != nil {
		t.NextDueAt = p.NextDueAt.UTC()
	}
	if p.Enabled != nil {
		t.Enabled = *p.Enabled
	}
	if p.PreferredTime != nil {
		t.PreferredTime = *p.PreferredTime
	}
}

// TaskLog is an immutable completion record. PlantID and Kind are copied from
// the template at completion time.
type TaskLog struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	UserID      string    `gorm:"primaryKey;size:64" json:"user_id"`
	TemplateID  string    `gorm:"index;size:64;not null" json:"task_id"`
	PlantID     *string   `gorm:"index;size:64" json:"plant_id"`
	Kind        TaskKind  `gorm:"not null" json:"task_type"`
	DoneAt      time.Time `gorm:"index" json:"done_at"`
	Notes       string    `json:"notes,omitempty"`
	ProductUsed string    `json:"product_used,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Completion is the conditional write performed when a template is marked done.
// It only applies while the stored template revision equals ExpectRevision;
// the template transition and the log insert land together or not at all.
type Completion struct {
	UserID         string
	TemplateID     string
	ExpectRevision int64
	NextDueAt      time.Time
	Enabled        bool
	Log            *TaskLog
}
