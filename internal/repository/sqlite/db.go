package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const busyTimeoutPragma = "_pragma=busy_timeout(5000)"

// Open opens (or creates) a sqlite database at the given path and ensures directories exist.
// The path ":memory:" opens a private in-memory database shared by all pooled connections.
func Open(path string) (*sql.DB, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	return db, nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&%s", uuid.NewString(), busyTimeoutPragma), nil
	}
	if strings.HasPrefix(path, "file:") {
		return appendQuery(path, busyTimeoutPragma), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create db dir: %w", err)
	}
	return appendQuery(path, busyTimeoutPragma), nil
}

func appendQuery(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}
