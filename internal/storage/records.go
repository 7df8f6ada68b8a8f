package storage

import (
	"time"
)

// MasterRecord is the stored credential of one identity. PasswordHash is the
// self-describing Argon2id string; nothing else about the password is kept.
type MasterRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Created      time.Time `json:"created"`
	Rotated      time.Time `json:"rotated,omitempty"`
}

// Entry is the public part of a stored secret, readable without a password.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Username    string    `json:"username,omitempty"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// Touch sets Modified, and Created on first use.
func (e *Entry) Touch(now time.Time) {
	if e.Created.IsZero() {
		e.Created = now
	}
	e.Modified = now
}
