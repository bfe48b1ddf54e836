package model

import "time"

// CareSchedule drives automatic template generation for a plant. A zero
// interval means the plant does not need that kind of care.
type CareSchedule struct {
	AutoGenerate       bool `json:"auto_generate"`
	WaterEveryDays     int  `json:"water_every_days,omitempty"`
	FertiliseEveryDays int  `json:"fertilise_every_days,omitempty"`
	PruneEveryDays     int  `json:"prune_every_days,omitempty"`
}

// Intervals returns the positive care intervals keyed by the task kind they generate.
func (c CareSchedule) Intervals() map[TaskKind]int {
	out := make(map[TaskKind]int, 3)
	if c.WaterEveryDays > 0 {
		out[TaskWater] = c.WaterEveryDays
	}
	if c.FertiliseEveryDays > 0 {
		out[TaskFertilise] = c.FertiliseEveryDays
	}
	if c.PruneEveryDays > 0 {
		out[TaskPrune] = c.PruneEveryDays
	}
	return out
}

// Plant is a tracked plant. Tasks and journal entries reference it by ID.
type Plant struct {
	ID        string       `gorm:"primaryKey;size:64" json:"id"`
	UserID    string       `gorm:"primaryKey;size:64" json:"user_id"`
	Name      string       `gorm:"not null" json:"name"`
	Species   string       `json:"species,omitempty"`
	Location  string       `json:"location,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	PhotoURI  string       `json:"photo_uri,omitempty"`
	Care      CareSchedule `gorm:"embedded;embeddedPrefix:care_" json:"care_schedule"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// JournalEntry is a dated note, optionally about a plant, with attached photos.
type JournalEntry struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	PlantID   *string   `gorm:"index;size:64" json:"plant_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Photos    []string  `gorm:"serializer:json" json:"photos,omitempty"`
	EntryDate time.Time `gorm:"index" json:"entry_date"`
	CreatedAt time.Time `json:"created_at"`
}
