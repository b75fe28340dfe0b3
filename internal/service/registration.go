package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"signup-portal/internal/csrf"
	"signup-portal/internal/domain"
	"signup-portal/internal/repository"
)

// Submission is the raw registration form as posted by the client.
type Submission struct {
	Username  string `validate:"required"`
	Name      string `validate:"required"`
	LastName  string `validate:"required"`
	Email     string `validate:"required"`
	Password  string `validate:"required"`
	CSRFToken string
}

// RegistrationService validates submissions and creates accounts.
type RegistrationService interface {
	// Register runs the checks in order and stops at the first failure.
	// sessionToken is the CSRF token held by the caller's session.
	Register(ctx context.Context, sub Submission, sessionToken string) Result
}

type registrationService struct {
	accounts repository.AccountRepository
	hasher   PasswordHasher
	validate *validator.Validate
}

func NewRegistrationService(accounts repository.AccountRepository, hasher PasswordHasher) RegistrationService {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &registrationService{
		accounts: accounts,
		hasher:   hasher,
		validate: newValidator(),
	}
}

func (s *registrationService) Register(ctx context.Context, sub Submission, sessionToken string) Result {
	sub = sanitize(sub)

	if err := s.validate.Struct(sub); err != nil {
		return reject(KindIncomplete, MsgIncomplete)
	}
	if !csrf.Verify(sessionToken, sub.CSRFToken) {
		return reject(KindInvalidCSRF, MsgInvalidCSRF)
	}
	if !passwordAcceptable(sub.Password) {
		return reject(KindWeakPassword, MsgWeakPassword)
	}
	if len(sub.Password) > passwordMaxLength {
		return reject(KindWeakPassword, MsgLongPassword)
	}
	if err := s.validate.Var(sub.Email, "email"); err != nil {
		return reject(KindInvalidEmail, MsgInvalidEmail)
	}
	if !fieldsWithinLimit(s.validate, sub) {
		return reject(KindFieldTooLong, MsgFieldTooLong)
	}

	return s.create(ctx, sub)
}

func (s *registrationService) create(ctx context.Context, sub Submission) Result {
	conn, err := s.accounts.Acquire(ctx)
	if err != nil {
		return failure(fmt.Errorf("connect account store: %w", err))
	}
	defer conn.Close()

	exists, err := conn.ExistsByUsernameOrEmail(ctx, sub.Username, sub.Email)
	if err != nil {
		return failure(err)
	}
	if exists {
		return reject(KindConflict, MsgConflict)
	}

	hash, err := s.hasher.Hash(sub.Password)
	if err != nil {
		return failure(err)
	}

	account := &domain.Account{
		Username:     sub.Username,
		Name:         sub.Name,
		LastName:     sub.LastName,
		Email:        sub.Email,
		PasswordHash: hash,
	}
	if _, err := conn.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			// lost a race with a concurrent registration; the unique constraint caught it
			return Result{Kind: KindConflict, Message: MsgConflict, Cause: err}
		}
		return failure(err)
	}

	return Result{Kind: KindSuccess, Message: MsgSuccess}
}
