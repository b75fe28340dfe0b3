package domain

import "time"

// Account is a registered user record. PasswordHash never holds plaintext.
type Account struct {
	ID           int64
	Username     string
	Name         string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
