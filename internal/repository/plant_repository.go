package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"garden-planner/internal/model"
)

// PlantRepository manages plants.
type PlantRepository struct {
	db *gorm.DB
}

func NewPlantRepository(db *gorm.DB) *PlantRepository {
	return &PlantRepository{db: db}
}

func (r *PlantRepository) List(ctx context.Context, userID string) ([]model.Plant, error) {
	var plants []model.Plant
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&plants).Error; err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	return plants, nil
}

func (r *PlantRepository) Get(ctx context.Context, userID, id string) (*model.Plant, error) {
	var plant model.Plant
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&plant).Error; err != nil {
		return nil, notFound(err)
	}
	return &plant, nil
}

func (r *PlantRepository) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, r.db, &model.Plant{}, userID, id)
}

func (r *PlantRepository) Create(ctx context.Context, plant *model.Plant) error {
	if err := r.db.WithContext(ctx).Create(plant).Error; err != nil {
		return fmt.Errorf("create plant: %w", err)
	}
	return nil
}

func (r *PlantRepository) Delete(ctx context.Context, userID, id string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).
		Delete(&model.Plant{}).Error; err != nil {
		return fmt.Errorf("delete plant: %w", err)
	}
	return nil
}

func (r *PlantRepository) DeleteAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&model.Plant{}).Error; err != nil {
		return fmt.Errorf("delete plants: %w", err)
	}
	return nil
}

// JournalRepository manages journal entries.
type JournalRepository struct {
	db *gorm.DB
}

func NewJournalRepository(db *gorm.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) List(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("entry_date DESC, created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

func (r *JournalRepository) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, r.db, &model.JournalEntry{}, userID, id)
}

func (r *JournalRepository) Create(ctx context.Context, entry *model.JournalEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create journal entry: %w", err)
	}
	return nil
}

func (r *JournalRepository) Delete(ctx context.Context, userID, id string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).
		Delete(&model.JournalEntry{}).Error; err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	return nil
}

func (r *JournalRepository) DeleteAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&model.JournalEntry{}).Error; err != nil {
		return fmt.Errorf("delete journal: %w", err)
	}
	return nil
}
