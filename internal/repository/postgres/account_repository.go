package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"signup-portal/internal/domain"
	"signup-portal/internal/repository"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Acquire(ctx context.Context) (repository.AccountConn, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire postgres connection: %w", err)
	}
	return &accountConn{conn: conn}, nil
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type accountConn struct {
	conn *sql.Conn
}

func (c *accountConn) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := c.conn.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM users WHERE username = $1 OR email = $2
)`,
		username,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query existing account: %w", err)
	}
	return exists, nil
}

func (c *accountConn) Create(ctx context.Context, account *domain.Account) (int64, error) {
	err := c.conn.QueryRowContext(ctx, `
INSERT INTO users (username, name, last_name, email, password)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`,
		account.Username,
		account.Name,
		account.LastName,
		account.Email,
		account.PasswordHash,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert account: %w", repository.ErrDuplicateAccount)
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}
	return account.ID, nil
}

func (c *accountConn) Close() error {
	return c.conn.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
