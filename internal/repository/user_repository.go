package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"garden-planner/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram returns the user bound to telegramID, creating it on
// first contact. The profile fields always take the latest values.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("telegram_id = ?", telegramID).
		Attrs(model.User{ID: uuid.NewString(), TelegramID: &telegramID}).
		Assign(model.User{FirstName: firstName, LastName: lastName, Username: username}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, fmt.Errorf("upsert telegram user %d: %w", telegramID, err)
	}
	return &user, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
