package models

import "time"

// Session holds the credentials issued by the Init endpoint. The store is the
// sole writer; everyone else reads a copy.
type Session struct {
	Token     string    `json:"token"`
	Endpoint  string    `json:"endpoint"`
	Email     string    `json:"email"`
	UserID    string    `json:"userId"`
	ExpiresOn time.Time `json:"expiresOn"`
}

// Usable reports whether the session can still open connections. Expiry is
// compared against the supplied clock every time, never cached.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.ExpiresOn.After(now)
}

// User is a registered chat user as stored by the reference server.
type User struct {
	ID        string    `db:"id" json:"userId"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ServerSession is a minted token row on the reference server.
type ServerSession struct {
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"userId"`
	ExpiresOn time.Time `db:"expires_on" json:"expiresOn"`
}
