package model

import "time"

// User is the owner of every garden record. TelegramID is set for users that
// came in through the bot.
type User struct {
	ID         string `gorm:"primaryKey;size:64"`
	TelegramID *int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
