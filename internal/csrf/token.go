// Package csrf mints and checks the per-session anti-forgery token.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"signup-portal/internal/session"
)

const (
	// SessionKey is the session value holding the token.
	SessionKey = "csrf_token"
	// FormField is the submitted form field carrying the token.
	FormField = "csrf_token"

	tokenBytes = 32
)

// Issuer ensures every session carries a token.
type Issuer struct {
	store  session.Store
	random io.Reader
	issued func()
}

// NewIssuer builds an Issuer; onIssue, when non-nil, is called once per minted token.
func NewIssuer(store session.Store, onIssue func()) *Issuer {
	return &Issuer{store: store, random: rand.Reader, issued: onIssue}
}

// Ensure returns the session's token, minting and persisting one when absent.
// The token is never replaced once set.
func (i *Issuer) Ensure(ctx context.Context, sess *session.Session) (string, error) {
	if token := sess.Get(SessionKey); token != "" {
		return token, nil
	}

	token, err := i.generate()
	if err != nil {
		return "", err
	}
	sess.Set(SessionKey, token)
	if err := i.store.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("save session token: %w", err)
	}
	if i.issued != nil {
		i.issued()
	}
	return token, nil
}

func (i *Issuer) generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Token returns the token held by sess, or "".
func Token(sess *session.Session) string {
	return sess.Get(SessionKey)
}

// Verify reports whether provided matches expected. Empty values never match.
func Verify(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
