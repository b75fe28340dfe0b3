package service

import (
	"html"
	"strings"
)

// sanitizeText drops ASCII control characters and HTML-escapes the rest.
func sanitizeText(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return html.EscapeString(stripped)
}

// sanitizeEmail keeps only characters that may appear in an address.
func sanitizeEmail(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("!#$%&'*+-=?^_`{|}~@.[]", r):
			return r
		}
		return -1
	}, s)
}

func sanitize(sub Submission) Submission {
	return Submission{
		Username:  sanitizeText(sub.Username),
		Name:      sanitizeText(sub.Name),
		LastName:  sanitizeText(sub.LastName),
		Email:     sanitizeEmail(sub.Email),
		Password:  sub.Password,
		CSRFToken: sub.CSRFToken,
	}
}
