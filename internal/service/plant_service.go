package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"garden-planner/internal/cache"
	"garden-planner/internal/model"
	"garden-planner/internal/photos"
	"garden-planner/internal/repository"
	"garden-planner/internal/resilience"
)

// PlantInput represents data required to create a plant.
type PlantInput struct {
	Name     string
	Species  string
	Location string
	Notes    string
	PhotoURI string
	Care     model.CareSchedule
}

// PlantService manages the plant inventory.
type PlantService struct {
	store  repository.Store
	guard  *resilience.Guard
	plants cache.Tiered[model.Plant]
	photos *photos.Library
	logger *log.Logger
}

func NewPlantService(store repository.Store, guard *resilience.Guard, local cache.Source, library *photos.Library, logger *log.Logger) *PlantService {
	if logger == nil {
		logger = log.Default()
	}
	return &PlantService{
		store:  store,
		guard:  guard,
		plants: cache.NewTiered[model.Plant](local, logger),
		photos: library,
		logger: logger,
	}
}

func (s *PlantService) List(ctx context.Context, user *model.User) ([]model.Plant, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	return s.plants.Read(ctx, cache.Key(cache.Plants, userID), func(ctx context.Context) ([]model.Plant, error) {
		return resilience.Call(ctx, s.guard, "list plants", func(ctx context.Context) ([]model.Plant, error) {
			return s.store.Plants().List(ctx, userID)
		})
	})
}

// Find looks a plant up by full id or by a unique id prefix.
func (s *PlantService) Find(ctx context.Context, user *model.User, ref string) (*model.Plant, error) {
	plants, err := s.List(ctx, user)
	if err != nil {
		return nil, err
	}
	return matchByPrefix(plants, func(p model.Plant) string { return p.ID }, ref)
}

func (s *PlantService) Get(ctx context.Context, user *model.User, id string) (*model.Plant, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	return resilience.Call(ctx, s.guard, "get plant", func(ctx context.Context) (*model.Plant, error) {
		return s.store.Plants().Get(ctx, userID, id)
	})
}

func (s *PlantService) Create(ctx context.Context, user *model.User, input PlantInput) (*model.Plant, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: plant name is required", model.ErrInvalidInput)
	}
	care := input.Care
	if care.WaterEveryDays < 0 || care.FertiliseEveryDays < 0 || care.PruneEveryDays < 0 {
		return nil, fmt.Errorf("%w: care intervals must not be negative", model.ErrInvalidInput)
	}

	plant := &model.Plant{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     name,
		Species:  strings.TrimSpace(input.Species),
		Location: strings.TrimSpace(input.Location),
		Notes:    input.Notes,
		PhotoURI: input.PhotoURI,
		Care:     care,
	}
	if err := s.guard.Do(ctx, "create plant", func(ctx context.Context) error {
		return s.store.Plants().Create(ctx, plant)
	}); err != nil {
		return nil, err
	}
	return plant, nil
}

// Delete removes a plant together with its task templates and its photo.
// Completion logs keep their copy of the plant id.
func (s *PlantService) Delete(ctx context.Context, user *model.User, id string) error {
	userID, err := model.RequireUser(user)
	if err != nil {
		return err
	}
	plant, err := s.Get(ctx, user, id)
	if err != nil {
		return err
	}
	if err := s.guard.Do(ctx, "delete plant templates", func(ctx context.Context) error {
		return s.store.Templates().DeleteByPlant(ctx, userID, id)
	}); err != nil {
		return err
	}
	if err := s.guard.Do(ctx, "delete plant", func(ctx context.Context) error {
		return s.store.Plants().Delete(ctx, userID, id)
	}); err != nil {
		return err
	}
	if s.photos != nil && plant.PhotoURI != "" {
		if err := s.photos.Remove(ctx, plant.PhotoURI); err != nil {
			s.logger.Printf("[warn] remove photo of plant %s: %v", id, err)
		}
	}
	return nil
}

// JournalInput represents data required to create a journal entry.
type JournalInput struct {
	PlantID string
	Title   string
	Body    string
	Photos  []string
	// EntryDate is an ISO-8601 instant or date. Empty means now.
	EntryDate string
}

// JournalService manages dated garden notes.
type JournalService struct {
	store   repository.Store
	guard   *resilience.Guard
	entries cache.Tiered[model.JournalEntry]
	loc     *time.Location
	now     func() time.Time
}

func NewJournalService(store repository.Store, guard *resilience.Guard, local cache.Source, loc *time.Location, logger *log.Logger) *JournalService {
	if loc == nil {
		loc = time.Local
	}
	return &JournalService{
		store:   store,
		guard:   guard,
		entries: cache.NewTiered[model.JournalEntry](local, logger),
		loc:     loc,
		now:     time.Now,
	}
}

func (s *JournalService) List(ctx context.Context, user *model.User) ([]model.JournalEntry, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	return s.entries.Read(ctx, cache.Key(cache.Journal, userID), func(ctx context.Context) ([]model.JournalEntry, error) {
		return resilience.Call(ctx, s.guard, "list journal", func(ctx context.Context) ([]model.JournalEntry, error) {
			return s.store.Journal().List(ctx, userID)
		})
	})
}

func (s *JournalService) Find(ctx context.Context, user *model.User, ref string) (*model.JournalEntry, error) {
	entries, err := s.List(ctx, user)
	if err != nil {
		return nil, err
	}
	return matchByPrefix(entries, func(e model.JournalEntry) string { return e.ID }, ref)
}

func (s *JournalService) Create(ctx context.Context, user *model.User, input JournalInput) (*model.JournalEntry, error) {
	userID, err := model.RequireUser(user)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: journal title is required", model.ErrInvalidInput)
	}
	now := s.now()
	date := now
	if input.EntryDate != "" {
		date, err = model.FromWireTimestamp(input.EntryDate, s.loc)
		if err != nil {
			return nil, err
		}
	}

	entry := &model.JournalEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlantID:   optionalID(input.PlantID),
		Title:     title,
		Body:      input.Body,
		Photos:    input.Photos,
		EntryDate: date.UTC(),
		CreatedAt: now.UTC(),
	}
	if err := s.guard.Do(ctx, "create journal entry", func(ctx context.Context) error {
		return s.store.Journal().Create(ctx, entry)
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *JournalService) Delete(ctx context.Context, user *model.User, id string) error {
	userID, err := model.RequireUser(user)
	if err != nil {
		return err
	}
	return s.guard.Do(ctx, "delete journal entry", func(ctx context.Context) error {
		return s.store.Journal().Delete(ctx, userID, id)
	})
}
