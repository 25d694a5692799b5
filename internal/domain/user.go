// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 64
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUserIDTooLong   = errors.New("user id too long")
)

type UserID string

// User is the account a session is signed in as. Anonymous sessions have
// an empty ID.
type User struct {
	ID       UserID `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id, username string) (User, error) {
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if len(id) > MaxUserIDLen {
		return User{}, ErrUserIDTooLong
	}
	if len(username) > MaxUsernameLen {
		return User{}, ErrUsernameTooLong
	}
	return User{ID: UserID(id), Username: username}, nil
}

func (u User) Anonymous() bool { return u.ID == "" }
