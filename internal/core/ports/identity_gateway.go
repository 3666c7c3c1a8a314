package ports

import (
	"context"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

// IdentityGateway is the authentication provider that owns Accounts.
//
// Implementations must enforce email uniqueness themselves: CreateAccount and
// UpdateAccount return domain.ErrEmailConflict when the email is taken. Lookups
// of absent accounts return domain.ErrAccountNotFound.
type IdentityGateway interface {
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	CreateAccount(ctx context.Context, in domain.NewAccount) (*domain.Account, error)
	UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) error
	DeleteAccount(ctx context.Context, id string) error
	TokenVerifier
}

// TokenVerifier decodes and checks bearer tokens. Invalid, expired or revoked
// tokens yield domain.ErrInvalidToken.
type TokenVerifier interface {
	VerifyBearerToken(ctx context.Context, token string) (*domain.Claims, error)
}
