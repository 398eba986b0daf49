package services

import (
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
)

// normalizeEmail is the canonical form used for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return common.BadRequest("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.IndexByte(email, '@')+1:], ".") {
		return common.BadRequest("Invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < common.MinPasswordLength {
		return common.BadRequest("Password must be at least 8 characters")
	}
	if len(password) > common.MaxPasswordBytes {
		return common.BadRequest("Password must be at most 72 bytes")
	}
	return nil
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
