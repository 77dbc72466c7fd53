package models

import "time"

// Ministry represents an organizational unit of the church that owns events
type Ministry struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description,omitempty" db:"description"`
	LogoURL     string           `json:"logo_url,omitempty" db:"logo_url"`
	Active      bool             `json:"active" db:"active"`
	CreatedBy   string           `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
	Leaders     []MinistryLeader `json:"leaders"`
}

// MaxMinistryLeaders 每个事工最多两名领袖
const MaxMinistryLeaders = 2

// MinistryLeader relates an identity to the ministry it leads
type MinistryLeader struct {
	MinistryID string    `json:"ministry_id" db:"ministry_id"`
	IdentityID string    `json:"identity_id" db:"identity_id"`
	Handle     string    `json:"handle" db:"handle"`
	FullName   string    `json:"full_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
