package domain

import "time"

// Session is the server-side record behind a session bearer token. Deleting
// it revokes the token even before the token itself expires.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s Session) Active(now time.Time) bool { return now.Before(s.ExpiresAt) }
