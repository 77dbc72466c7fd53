package models

import "time"

// EventState 活动生命周期状态
type EventState string

const (
	EventPending   EventState = "PENDING"
	EventInReview  EventState = "IN_REVIEW"
	EventApproved  EventState = "APPROVED"
	EventRejected  EventState = "REJECTED"
	EventCancelled EventState = "CANCELLED"
)

// Terminal reports whether no transition leaves s.
func (s EventState) Terminal() bool {
	return s == EventRejected || s == EventCancelled
}

// Editable reports whether the event fields may still change in state s.
func (s EventState) Editable() bool {
	return s == EventPending || s == EventInReview
}

// Scheduled 是否仍占用事工日程（未拒绝、未取消）
func (s EventState) Scheduled() bool {
	return s == EventPending || s == EventInReview || s == EventApproved
}

// Event represents a scheduled activity owned by a ministry
type Event struct {
	ID              string     `json:"id" db:"id"`
	MinistryID      string     `json:"ministry_id" db:"ministry_id"`
	Name            string     `json:"name" db:"name"`
	Description     string     `json:"description,omitempty" db:"description"`
	StartsAt        time.Time  `json:"starts_at" db:"starts_at"`
	EndsAt          *time.Time `json:"ends_at,omitempty" db:"ends_at"`
	Location        string     `json:"location,omitempty" db:"location"`
	Active          bool       `json:"active" db:"active"`
	State           EventState `json:"state" db:"state"`
	RejectionReason *string    `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Version         int64      `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
