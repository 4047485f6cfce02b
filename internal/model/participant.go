package model

import "time"

// Participant is a registered test taker. Roster management is out of scope;
// this exists for token subjects and seeding.
type Participant struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
