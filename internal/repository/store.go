package repository

import (
	"context"

	"garden-planner/internal/model"
)

// TemplateFilter narrows template listings. Zero value lists everything.
type TemplateFilter struct {
	EnabledOnly bool
	PlantID     string
}

// TemplateStore is the remote collection of task templates. Listings are
// ordered newest-created first.
type TemplateStore interface {
	List(ctx context.Context, userID string, filter TemplateFilter) ([]model.TaskTemplate, error)
	Get(ctx context.Context, userID, id string) (*model.TaskTemplate, error)
	Exists(ctx context.Context, userID, id string) (bool, error)
	Create(ctx context.Context, tmpl *model.TaskTemplate) error
	Update(ctx context.Context, userID, id string, patch model.TemplatePatch) error
	Complete(ctx context.Context, c model.Completion) error
	Delete(ctx context.Context, userID, id string) error
	DeleteByPlant(ctx context.Context, userID, plantID string) error
	DeleteAll(ctx context.Context, userID string) error
}

// LogStore is the remote collection of completion logs, newest first.
type LogStore interface {
	List(ctx context.Context, userID string) ([]model.TaskLog, error)
	ListByTemplate(ctx context.Context, userID, templateID string) ([]model.TaskLog, error)
	Exists(ctx context.Context, userID, id string) (bool, error)
	Create(ctx context.Context, entry *model.TaskLog) error
	DeleteAll(ctx context.Context, userID string) error
}

// PlantStore is the remote collection of plants, ordered by name.
type PlantStore interface {
	List(ctx context.Context, userID string) ([]model.Plant, error)
	Get(ctx context.Context, userID, id string) (*model.Plant, error)
	Exists(ctx context.Context, userID, id string) (bool, error)
	Create(ctx context.Context, plant *model.Plant) error
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) error
}

// JournalStore is the remote collection of journal entries, newest first.
type JournalStore interface {
	List(ctx context.Context, userID string) ([]model.JournalEntry, error)
	Exists(ctx context.Context, userID, id string) (bool, error)
	Create(ctx context.Context, entry *model.JournalEntry) error
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) error
}

// UserStore keeps the owners of garden data.
type UserStore interface {
	UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	ListAll(ctx context.Context) ([]model.User, error)
}

// Store bundles the collections of one remote backend.
type Store interface {
	Templates() TemplateStore
	Logs() LogStore
	Plants() PlantStore
	Journal() JournalStore
	Users() UserStore
	Ping(ctx context.Context) error
	Close() error
}
