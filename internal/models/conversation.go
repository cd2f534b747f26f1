package models

import "time"

// Conversation is a one-to-one chat between two users of the same
// organization.
type Conversation struct {
	ID             int       `db:"id" json:"id"`
	OrganizationID int       `db:"organization_id" json:"organization_id"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// GroupChat is a multi-member chat room.
type GroupChat struct {
	ID             int       `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	OrganizationID int       `db:"organization_id" json:"organization_id"`
	CreatedByID    int       `db:"created_by_id" json:"created_by_id"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

