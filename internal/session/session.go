// Package session keeps server-side session values keyed by a cookie-borne id.
package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Session is the server-side state bound to one browser session.
type Session struct {
	ID     string
	Values map[string]string
}

// New returns an empty session with the given id.
func New(id string) *Session {
	return &Session{ID: id, Values: make(map[string]string)}
}

// Get returns the value stored under key, or "" when absent.
func (s *Session) Get(key string) string {
	if s == nil || s.Values == nil {
		return ""
	}
	return s.Values[key]
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
}

// Store persists sessions.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}
