package mongostore

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"garden-planner/internal/model"
)

type templateDoc struct {
	ID            string             `bson:"id"`
	UserID        string             `bson:"user_id"`
	PlantID       *string            `bson:"plant_id"`
	Kind          string             `bson:"task_type"`
	FrequencyDays int                `bson:"frequency_days"`
	NextDueAt     primitive.DateTime `bson:"next_due_at"`
	Enabled       bool               `bson:"enabled"`
	PreferredTime string             `bson:"preferred_time,omitempty"`
	Revision      int64              `bson:"revision"`
	CreatedAt     primitive.DateTime `bson:"created_at"`
	UpdatedAt     primitive.DateTime `bson:"updated_at"`
}

func templateToDoc(t *model.TaskTemplate) templateDoc {
	return templateDoc{
		ID:            t.ID,
		UserID:        t.UserID,
		PlantID:       t.PlantID,
		Kind:          string(t.Kind),
		FrequencyDays: t.FrequencyDays,
		NextDueAt:     toDateTime(t.NextDueAt),
		Enabled:       t.Enabled,
		PreferredTime: string(t.PreferredTime),
		Revision:      t.Revision,
		CreatedAt:     toDateTime(t.CreatedAt),
		UpdatedAt:     toDateTime(t.UpdatedAt),
	}
}

func (d templateDoc) model() model.TaskTemplate {
	return model.TaskTemplate{
		ID:            d.ID,
		UserID:        d.UserID,
		PlantID:       d.PlantID,
		Kind:          model.TaskKind(d.Kind),
		FrequencyDays: d.FrequencyDays,
		NextDueAt:     fromDateTime(d.NextDueAt),
		Enabled:       d.Enabled,
		PreferredTime: model.TimeOfDay(d.PreferredTime),
		Revision:      d.Revision,
		CreatedAt:     fromDateTime(d.CreatedAt),
		UpdatedAt:     fromDateTime(d.UpdatedAt),
	}
}

type logDoc struct {
	ID          string             `bson:"id"`
	UserID      string             `bson:"user_id"`
	TemplateID  string             `bson:"task_id"`
	PlantID     *string            `bson:"plant_id"`
	Kind        string             `bson:"task_type"`
	DoneAt      primitive.DateTime `bson:"done_at"`
	Notes       string             `bson:"notes,omitempty"`
	ProductUsed string             `bson:"product_used,omitempty"`
	CreatedAt   primitive.DateTime `bson:"created_at"`
}

func logToDoc(l *model.TaskLog) logDoc {
	return logDoc{
		ID:          l.ID,
		UserID:      l.UserID,
		TemplateID:  l.TemplateID,
		PlantID:     l.PlantID,
		Kind:        string(l.Kind),
		DoneAt:      toDateTime(l.DoneAt),
		Notes:       l.Notes,
		ProductUsed: l.ProductUsed,
		CreatedAt:   toDateTime(l.CreatedAt),
	}
}

func (d logDoc) model() model.TaskLog {
	return model.TaskLog{
		ID:          d.ID,
		UserID:      d.UserID,
		TemplateID:  d.TemplateID,
		PlantID:     d.PlantID,
		Kind:        model.TaskKind(d.Kind),
		DoneAt:      fromDateTime(d.DoneAt),
		Notes:       d.Notes,
		ProductUsed: d.ProductUsed,
		CreatedAt:   fromDateTime(d.CreatedAt),
	}
}

type careDoc struct {
	AutoGenerate       bool `bson:"auto_generate"`
	WaterEveryDays     int  `bson:"water_every_days,omitempty"`
	FertiliseEveryDays int  `bson:"fertilise_every_days,omitempty"`
	PruneEveryDays     int  `bson:"prune_every_days,omitempty"`
}

type plantDoc struct {
	ID        string             `bson:"id"`
	UserID    string             `bson:"user_id"`
	Name      string             `bson:"name"`
	Species   string             `bson:"species,omitempty"`
	Location  string             `bson:"location,omitempty"`
	Notes     string             `bson:"notes,omitempty"`
	PhotoURI  string             `bson:"photo_uri,omitempty"`
	Care      careDoc            `bson:"care_schedule"`
	CreatedAt primitive.DateTime `bson:"created_at"`
	UpdatedAt primitive.DateTime `bson:"updated_at"`
}

func plantToDoc(p *model.Plant) plantDoc {
	return plantDoc{
		ID:       p.ID,
		UserID:   p.UserID,
		Name:     p.Name,
		Species:  p.Species,
		Location: p.Location,
		Notes:    p.Notes,
		PhotoURI: p.PhotoURI,
		Care: careDoc{
			AutoGenerate:       p.Care.AutoGenerate,
			WaterEveryDays:     p.Care.WaterEveryDays,
			FertiliseEveryDays: p.Care.FertiliseEveryDays,
			PruneEveryDays:     p.Care.PruneEveryDays,
		},
		CreatedAt: toDateTime(p.CreatedAt),
		UpdatedAt: toDateTime(p.UpdatedAt),
	}
}

func (d plantDoc) model() model.Plant {
	return model.Plant{
		ID:       d.ID,
		UserID:   d.UserID,
		Name:     d.Name,
		Species:  d.Species,
		Location: d.Location,
		Notes:    d.Notes,
		PhotoURI: d.PhotoURI,
		Care: model.CareSchedule{
			AutoGenerate:       d.Care.AutoGenerate,
			WaterEveryDays:     d.Care.WaterEveryDays,
			FertiliseEveryDays: d.Care.FertiliseEveryDays,
			PruneEveryDays:     d.Care.PruneEveryDays,
		},
		CreatedAt: fromDateTime(d.CreatedAt),
		UpdatedAt: fromDateTime(d.UpdatedAt),
	}
}

type journalDoc struct {
	ID        string             `bson:"id"`
	UserID    string             `bson:"user_id"`
	PlantID   *string            `bson:"plant_id"`
	Title     string             `bson:"title"`
	Body      string             `bson:"body,omitempty"`
	Photos    []string           `bson:"photos,omitempty"`
	EntryDate primitive.DateTime `bson:"entry_date"`
	CreatedAt primitive.DateTime `bson:"created_at"`
}

func journalToDoc(e *model.JournalEntry) journalDoc {
	return journalDoc{
		ID:        e.ID,
		UserID:    e.UserID,
		PlantID:   e.PlantID,
		Title:     e.Title,
		Body:      e.Body,
		Photos:    e.Photos,
		EntryDate: toDateTime(e.EntryDate),
		CreatedAt: toDateTime(e.CreatedAt),
	}
}

func (d journalDoc) model() model.JournalEntry {
	return model.JournalEntry{
		ID:        d.ID,
		UserID:    d.UserID,
		PlantID:   d.PlantID,
		Title:     d.Title,
		Body:      d.Body,
		Photos:    d.Photos,
		EntryDate: fromDateTime(d.EntryDate),
		CreatedAt: fromDateTime(d.CreatedAt),
	}
}

type userDoc struct {
	ID         string             `bson:"id"`
	TelegramID *int64             `bson:"telegram_id,omitempty"`
	FirstName  string             `bson:"first_name"`
	LastName   string             `bson:"last_name"`
	Username   string             `bson:"username"`
	CreatedAt  primitive.DateTime `bson:"created_at"`
	UpdatedAt  primitive.DateTime `bson:"updated_at"`
}

func (d userDoc) model() model.User {
	return model.User{
		ID:         d.ID,
		TelegramID: d.TelegramID,
		FirstName:  d.FirstName,
		LastName:   d.LastName,
		Username:   d.Username,
		CreatedAt:  fromDateTime(d.CreatedAt),
		UpdatedAt:  fromDateTime(d.UpdatedAt),
	}
}
