package service

import (
	"context"

	"signup-portal/internal/domain"
	"signup-portal/internal/repository"
)

type mockAccountRepo struct {
	acquireErr error
	conn       *mockAccountConn
	acquired   int
}

func (m *mockAccountRepo) Acquire(context.Context) (repository.AccountConn, error) {
	m.acquired++
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	return m.conn, nil
}

func (m *mockAccountRepo) Ping(context.Context) error { return nil }

type mockAccountConn struct {
	existsFunc func(ctx context.Context, username, email string) (bool, error)
	createFunc func(ctx context.Context, account *domain.Account) (int64, error)

	created []*domain.Account
	closed  int
}

func (m *mockAccountConn) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, username, email)
	}
	return false, nil
}

func (m *mockAccountConn) Create(ctx context.Context, account *domain.Account) (int64, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, account)
	}
	m.created = append(m.created, account)
	account.ID = int64(len(m.created))
	return account.ID, nil
}

func (m *mockAccountConn) Close() error {
	m.closed++
	return nil
}

type mockHasher struct {
	hashFunc func(password string) (string, error)
}

func (m *mockHasher) Hash(password string) (string, error) {
	if m.hashFunc != nil {
		return m.hashFunc(password)
	}
	return "hashed:" + password, nil
}

func (m *mockHasher) Compare(hash, password string) error { return nil }
