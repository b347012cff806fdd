// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

// User is the slice of the user record this service reads and mutates.
// Everything else about a user lives in the external user service.
type User struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

func (id UserID) Validate() error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}
