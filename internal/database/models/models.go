// Package models holds the persistent record types shared by the store
// backends.
package models

import "time"

// Tenant is a business answered by the gateway, identified by the phone
// number callers dial. Each tenant owns the system prompt that steers its
// reply generation.
type Tenant struct {
	ID              int64
	Name            string
	DialedNumber    string // unique key, E.164
	SystemPrompt    string
	EscalationPhone string
	OpeningHours    string
	Address         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Call log status values.
const (
	CallStatusInProgress   = "in_progress"
	CallStatusCompleted    = "completed"
	CallStatusDisconnected = "disconnected"
)

// CallLogEntry records one answered call. A row is opened when the media
// stream connects for a resolved tenant and closed with a duration and final
// status when the call ends.
type CallLogEntry struct {
	ID              int64
	TenantID        int64
	StreamSID       string
	CallSID         string
	DialedNumber    string
	DurationSeconds *int
	Status          string
	StartedAt       time.Time
	EndedAt         *time.Time
}

// AdminUser is an operator account for the management API.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
