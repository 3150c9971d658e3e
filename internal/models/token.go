package models

import "time"

// MaxActiveTokens caps how many push endpoints one user may keep active.
// Registering beyond the cap deactivates the oldest entries.
const MaxActiveTokens = 5

// NotificationToken is one registered push delivery endpoint for a user.
type NotificationToken struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"-"`
	Token     string    `db:"token" json:"-"`
	Platform  string    `db:"platform" json:"platform"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	LastUsed  time.Time `db:"last_used" json:"last_used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
