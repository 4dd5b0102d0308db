package domain

import "time"

// Session is the live binding between one connection and an authenticated
// username. It exists only in memory, from a successful join until
// disconnect. The username is immutable after join.
type Session struct {
	ConnID   string
	Username string
	JoinedAt time.Time
}

func NewSession(connID, username string) *Session {
	return &Session{
		ConnID:   connID,
		Username: username,
		JoinedAt: time.Now(),
	}
}
