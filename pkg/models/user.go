// Package models contains shared data models used across the agroassist codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered farmer or operator. Every job, API key, and
// conversation belongs to a user.
type User struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	Username    string    `db:"username"     json:"username"`
	FullName    string    `db:"full_name"    json:"full_name"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Province    string    `db:"province"     json:"province"`
	Role        string    `db:"role"         json:"role"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
