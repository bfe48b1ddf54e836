package model

import "errors"

var (
	ErrNotAuthenticated = errors.New("model: not authenticated")
	ErrNotFound         = errors.New("model: not found")
	ErrPermissionDenied = errors.New("model: permission denied")
	ErrConflict         = errors.New("model: concurrent modification")
	ErrInvalidInput     = errors.New("model: invalid input")
)

// RequireUser returns the id of the authenticated user or ErrNotAuthenticated.
func RequireUser(user *User) (string, error) {
	if user == nil || user.ID == "" {
		return "", ErrNotAuthenticated
	}
	return user.ID, nil
}
