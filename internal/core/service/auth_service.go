package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

// AuthService implements operator login and the admin bootstrap.
type AuthService struct {
	creds    ports.CredentialStore
	identity ports.IdentityGateway
	tokens   ports.TokenIssuer
	tokenTTL time.Duration
	log      zerolog.Logger
}

func NewAuthService(creds ports.CredentialStore, identity ports.IdentityGateway, tokens ports.TokenIssuer, tokenTTL time.Duration, log zerolog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthService{creds: creds, identity: identity, tokens: tokens, tokenTTL: tokenTTL, log: log}
}

// Login exchanges operator credentials for a bearer token. Student accounts
// cannot log in to the lifecycle API.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, domain.ErrInvalidCredentials
	}

	acct, err := s.creds.CheckPassword(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	if acct.Role != domain.RoleAdmin && acct.Role != domain.RoleTeacher {
		return "", nil, domain.ErrForbidden
	}

	token, err := s.tokens.Issue(acct, s.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, acct, nil
}

// EnsureAdmin creates the bootstrap admin account when no account uses email.
// An existing account is left untouched, whatever its role.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	if err := validateEmail("adminEmail", email); err != nil {
		return err
	}

	existing, err := s.identity.GetAccountByEmail(ctx, email)
	if err == nil {
		if existing.Role != domain.RoleAdmin {
			s.log.Warn().Str("email", email).Str("role", existing.Role).Msg("bootstrap admin email belongs to a non-admin account")
		}
		return nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}

	acct, err := s.identity.CreateAccount(ctx, domain.NewAccount{
		Email:       email,
		DisplayName: "Administrator",
		Password:    password,
		Role:        domain.RoleAdmin,
	})
	if errors.Is(err, domain.ErrEmailConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.log.Info().Str("uid", strings.TrimSpace(acct.ID)).Str("email", email).Msg("bootstrap admin created")
	return nil
}
