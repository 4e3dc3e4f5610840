package auth

import "time"

// SessionRecord is the audit row kept in postgres for every login session.
// The authoritative session state lives in Redis; these rows exist so
// operators can see who is signed in and so stale entries can be pruned.
type SessionRecord struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}
