package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

var validate = validator.New()

// normalizeEmail lower-cases and trims an email; the identity store compares
// emails in this form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail requires a local@domain.tld shaped address.
func validateEmail(field, email string) error {
	if email == "" {
		return domain.NewValidationError(field, "is required")
	}
	if err := validate.Var(email, "email"); err != nil {
		return domain.NewValidationError(field, "invalid email format")
	}
	host := email[strings.LastIndexByte(email, '@')+1:]
	dot := strings.LastIndexByte(host, '.')
	if dot <= 0 || dot == len(host)-1 {
		return domain.NewValidationError(field, "invalid email format")
	}
	return nil
}

func validateAccountID(id string) error {
	if id == "" {
		return domain.NewValidationError("uid", "is required")
	}
	return nil
}

// callContext bounds a single gateway call. A zero timeout leaves ctx as is.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
