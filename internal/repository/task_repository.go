package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"garden-planner/internal/model"
)

// TemplateRepository handles CRUD for task templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) List(ctx context.Context, userID string, filter TemplateFilter) ([]model.TaskTemplate, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.EnabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if filter.PlantID != "" {
		q = q.Where("plant_id = ?", filter.PlantID)
	}
	var templates []model.TaskTemplate
	if err := q.Order("created_at DESC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) Get(ctx context.Context, userID, id string) (*model.TaskTemplate, error) {
	var tmpl model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&tmpl).Error; err != nil {
		return nil, notFound(err)
	}
	return &tmpl, nil
}

func (r *TemplateRepository) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, r.db, &model.TaskTemplate{}, userID, id)
}

func (r *TemplateRepository) Create(ctx context.Context, tmpl *model.TaskTemplate) error {
	tmpl.NextDueAt = tmpl.NextDueAt.UTC()
	if err := r.db.WithContext(ctx).Create(tmpl).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Update(ctx context.Context, userID, id string, patch model.TemplatePatch) error {
	updates := map[string]any{
		"revision":   gorm.Expr("revision + 1"),
		"updated_at": time.Now().UTC(),
	}
	if patch.PlantID != nil {
		updates["plant_id"] = *patch.PlantID
	}
	if patch.Kind != nil {
		updates["kind"] = *patch.Kind
	}
	if patch.FrequencyDays != nil {
		updates["frequency_days"] = *patch.FrequencyDays
	}
	if patch.NextDueAt != nil {
		updates["next_due_at"] = patch.NextDueAt.UTC()
	}
	if patch.Enabled != nil {
		updates["enabled"] = *patch.Enabled
	}
	if patch.PreferredTime != nil {
		updates["preferred_time"] = *patch.PreferredTime
	}

	res := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Complete applies a completion in one transaction. The template row is only
// touched while its revision still matches; otherwise ErrConflict is returned
// and no log is written.
func (r *TemplateRepository) Complete(ctx context.Context, c model.Completion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.TaskTemplate{}).
			Where("user_id = ? AND id = ? AND revision = ?", c.UserID, c.TemplateID, c.ExpectRevision).
			Updates(map[string]any{
				"next_due_at": c.NextDueAt.UTC(),
				"enabled":     c.Enabled,
				"revision":    gorm.Expr("revision + 1"),
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("complete template: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			found, err := exists(ctx, tx, &model.TaskTemplate{}, c.UserID, c.TemplateID)
			if err != nil {
				return fmt.Errorf("complete template: %w", err)
			}
			if !found {
				return model.ErrNotFound
			}
			return model.ErrConflict
		}
		if c.Log != nil {
			if err := tx.Create(c.Log).Error; err != nil {
				return fmt.Errorf("create task log: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a template for the given user.
func (r *TemplateRepository) Delete(ctx context.Context, userID, id string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).
		Delete(&model.TaskTemplate{}).Error; err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) DeleteByPlant(ctx context.Context, userID, plantID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND plant_id = ?", userID, plantID).
		Delete(&model.TaskTemplate{}).Error; err != nil {
		return fmt.Errorf("delete plant templates: %w", err)
	}
	return nil
}

func (r *TemplateRepository) DeleteAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&model.TaskTemplate{}).Error; err != nil {
		return fmt.Errorf("delete templates: %w", err)
	}
	return nil
}

// TaskLogRepository stores completion logs. Logs are never updated.
type TaskLogRepository struct {
	db *gorm.DB
}

func NewTaskLogRepository(db *gorm.DB) *TaskLogRepository {
	return &TaskLogRepository{db: db}
}

func (r *TaskLogRepository) List(ctx context.Context, userID string) ([]model.TaskLog, error) {
	var logs []model.TaskLog
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("done_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	return logs, nil
}

func (r *TaskLogRepository) ListByTemplate(ctx context.Context, userID, templateID string) ([]model.TaskLog, error) {
	var logs []model.TaskLog
	if err := r.db.WithContext(ctx).Where("user_id = ? AND template_id = ?", userID, templateID).
		Order("done_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list template logs: %w", err)
	}
	return logs, nil
}

func (r *TaskLogRepository) Exists(ctx context.Context, userID, id string) (bool, error) {
	return exists(ctx, r.db, &model.TaskLog{}, userID, id)
}

func (r *TaskLogRepository) Create(ctx context.Context, entry *model.TaskLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create task log: %w", err)
	}
	return nil
}

func (r *TaskLogRepository) DeleteAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&model.TaskLog{}).Error; err != nil {
		return fmt.Errorf("delete task logs: %w", err)
	}
	return nil
}
