package models

import "time"

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// User is the identity record. Roles are resolved from user_roles on load.
type User struct {
	ID              int64
	Login           string
	Email           string
	PasswordHash    []byte
	DisplayName     string
	FirstName       string
	ExternalID      *string
	Status          UserStatus
	Roles           []string
	Collectifs      []string
	GaletteSyncedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
