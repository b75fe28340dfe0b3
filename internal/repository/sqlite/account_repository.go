package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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
		return nil, fmt.Errorf("acquire sqlite connection: %w", err)
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
	var count int
	err := c.conn.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM users
WHERE username = ? OR email = ?`,
		username,
		email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query existing account: %w", err)
	}
	return count > 0, nil
}

func (c *accountConn) Create(ctx context.Context, account *domain.Account) (int64, error) {
	account.CreatedAt = time.Now().UTC()

	res, err := c.conn.ExecContext(ctx, `
INSERT INTO users (username, name, last_name, email, password, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		account.Username,
		account.Name,
		account.LastName,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert account: %w", repository.ErrDuplicateAccount)
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("account last insert id: %w", err)
	}
	account.ID = id
	return id, nil
}

func (c *accountConn) Close() error {
	return c.conn.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedrv.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
