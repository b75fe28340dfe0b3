package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	passwordMinLength = 8
	// bcrypt rejects longer inputs
	passwordMaxLength = 72
	// applied after escaping, so it bounds what reaches the store
	fieldMaxLength = 255
)

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// fieldsWithinLimit checks the stored text fields against fieldMaxLength characters.
func fieldsWithinLimit(v *validator.Validate, sub Submission) bool {
	rule := fmt.Sprintf("max=%d", fieldMaxLength)
	for _, value := range []string{sub.Username, sub.Name, sub.LastName, sub.Email} {
		if err := v.Var(value, rule); err != nil {
			return false
		}
	}
	return true
}

// passwordAcceptable requires 8+ bytes with at least one ASCII letter and one ASCII digit.
func passwordAcceptable(password string) bool {
	if len(password) < passwordMinLength {
		return false
	}

	hasLetter := false
	hasDigit := false
	for i := 0; i < len(password); i++ {
		b := password[i]
		switch {
		case (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z'):
			hasLetter = true
		case b >= '0' && b <= '9':
			hasDigit = true
		}
		if hasLetter && hasDigit {
			return true
		}
	}
	return false
}
