package ports

import (
	"context"
	"time"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

// CredentialStore checks account passwords. It is implemented by the identity
// store alongside IdentityGateway.
type CredentialStore interface {
	// CheckPassword returns the account for email when password matches.
	// Unknown emails, wrong passwords and disabled accounts all yield
	// domain.ErrInvalidCredentials.
	CheckPassword(ctx context.Context, email, password string) (*domain.Account, error)
}

// TokenIssuer signs bearer tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(account *domain.Account, ttl time.Duration) (string, error)
}
