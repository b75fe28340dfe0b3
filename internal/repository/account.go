package repository

import (
	"context"
	"errors"

	"signup-portal/internal/domain"
)

// ErrDuplicateAccount is returned by Create when the username or email
// unique constraint rejects the row.
var ErrDuplicateAccount = errors.New("account already exists")

// AccountRepository hands out store connections for the registration flow.
type AccountRepository interface {
	Acquire(ctx context.Context) (AccountConn, error)
	Ping(ctx context.Context) error
}

// AccountConn is a single store connection. Close must be called on every path.
type AccountConn interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, account *domain.Account) (int64, error)
	Close() error
}
