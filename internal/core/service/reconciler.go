package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

const (
	claimTTL           = 30 * time.Second
	claimRetryInterval = 100 * time.Millisecond
	claimMaxRetries    = 20
)

var errClaimHeld = errors.New("reconcile claim held by another request")

// ClaimLocker abstracts the short-lived per-email claim store (Redis).
type ClaimLocker interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ReconcilerConfig holds the account reconciler settings.
type ReconcilerConfig struct {
	// DefaultPassword is the initial credential of accounts created by bulk provisioning.
	DefaultPassword string
	// CallTimeout bounds each identity and document store call.
	CallTimeout time.Duration
}

// AccountReconciler makes sure an Account and its Profile exist for a
// requested student, creating only what is missing. Running it twice for the
// same email never creates a second account.
type AccountReconciler struct {
	identity ports.IdentityGateway
	store    ports.DocumentStore
	claims   ClaimLocker
	cfg      ReconcilerConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewAccountReconciler returns an AccountReconciler. claims may be nil.
func NewAccountReconciler(
	identity ports.IdentityGateway,
	store ports.DocumentStore,
	claims ClaimLocker,
	cfg ReconcilerConfig,
	log zerolog.Logger,
) *AccountReconciler {
	return &AccountReconciler{
		identity: identity,
		store:    store,
		claims:   claims,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// Reconcile never returns an error: failures are reported in the outcome so
// that a batch can carry on with its other items.
func (r *AccountReconciler) Reconcile(ctx context.Context, req ports.ProvisionRequest) ports.ProvisionOutcome {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	out := ports.ProvisionOutcome{Email: email}
	if email == "" {
		out.Email = req.Email
	}

	if err := validateProvisionRequest(email, name); err != nil {
		out.Err = err
		return out
	}

	release := r.claim(ctx, email)
	defer release()

	acct, created, err := r.lookupOrCreate(ctx, email, name)
	if err != nil {
		out.Err = err
		return out
	}

	storedName, err := r.ensureProfile(ctx, acct.ID, email, name, strings.TrimSpace(req.Phone))
	if err != nil {
		out.Err = err
		return out
	}

	r.log.Debug().
		Str("uid", acct.ID).
		Str("email", email).
		Bool("account_created", created).
		Msg("account reconciled")

	out.Success = true
	out.AccountID = acct.ID
	out.Name = storedName
	return out
}

func validateProvisionRequest(email, name string) error {
	if err := validateEmail("email", email); err != nil {
		return err
	}
	if name == "" {
		return domain.NewValidationError("name", "is required")
	}
	return nil
}

// lookupOrCreate reuses the account registered under email, or creates one.
// An existing account is never modified.
func (r *AccountReconciler) lookupOrCreate(ctx context.Context, email, name string) (*domain.Account, bool, error) {
	acct, err := r.getAccountByEmail(ctx, email)
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, false, fmt.Errorf("lookup account: %w", err)
	}

	cctx, cancel := callContext(ctx, r.cfg.CallTimeout)
	acct, err = r.identity.CreateAccount(cctx, domain.NewAccount{
		Email:       email,
		DisplayName: name,
		Password:    r.cfg.DefaultPassword,
		Disabled:    false,
		Role:        domain.RoleStudent,
	})
	cancel()
	switch {
	case err == nil:
		return acct, true, nil
	case errors.Is(err, domain.ErrEmailConflict):
		// Another request created the account between our lookup and create.
		acct, err = r.getAccountByEmail(ctx, email)
		if err != nil {
			return nil, false, fmt.Errorf("reread account after conflict: %w", err)
		}
		return acct, false, nil
	default:
		return nil, false, fmt.Errorf("create account: %w", err)
	}
}

func (r *AccountReconciler) getAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	cctx, cancel := callContext(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.identity.GetAccountByEmail(cctx, email)
}

// ensureProfile creates the profile when absent and returns the authoritative
// display name: the stored one when a profile already exists. A profile is
// never overwritten, even when a concurrent reconcile creates it first.
func (r *AccountReconciler) ensureProfile(ctx context.Context, uid, email, name, phone string) (string, error) {
	stored, err := r.storedName(ctx, uid, name)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		return "", fmt.Errorf("get profile: %w", err)
	}

	profile := domain.NewStudentProfile(uid, email, name, phone, r.now().UTC())
	cctx, cancel := callContext(ctx, r.cfg.CallTimeout)
	err = r.store.Create(cctx, domain.CollectionProfiles, uid, profile.Fields())
	cancel()
	switch {
	case err == nil:
		return name, nil
	case errors.Is(err, domain.ErrDocumentExists):
		stored, err := r.storedName(ctx, uid, name)
		if err != nil {
			return "", fmt.Errorf("reread profile after conflict: %w", err)
		}
		return stored, nil
	default:
		return "", fmt.Errorf("create profile: %w", err)
	}
}

// storedName returns the name of the stored profile, or fallback when that
// name is empty.
func (r *AccountReconciler) storedName(ctx context.Context, uid, fallback string) (string, error) {
	cctx, cancel := callContext(ctx, r.cfg.CallTimeout)
	defer cancel()
	doc, err := r.store.Get(cctx, domain.CollectionProfiles, uid)
	if err != nil {
		return "", err
	}
	if stored := domain.ProfileFromDocument(*doc).Name; stored != "" {
		return stored, nil
	}
	return fallback, nil
}

// claim serialises reconciliation of one email across concurrent requests.
// The claim is an optimisation: when it cannot be taken the reconciler
// proceeds, relying on the identity store's unique email constraint.
func (r *AccountReconciler) claim(ctx context.Context, email string) func() {
	if r.claims == nil {
		return func() {}
	}

	key := "reconcile:" + email
	var token string
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(claimRetryInterval), claimMaxRetries),
		ctx,
	)
	err := backoff.Retry(func() error {
		t, ok, err := r.claims.Claim(ctx, key, claimTTL)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errClaimHeld
		}
		token = t
		return nil
	}, policy)
	if err != nil {
		r.log.Warn().Err(err).Str("email", email).Msg("reconcile claim unavailable, proceeding without it")
		return func() {}
	}

	return func() {
		if err := r.claims.Release(context.WithoutCancel(ctx), key, token); err != nil {
			r.log.Warn().Err(err).Str("email", email).Msg("failed to release reconcile claim")
		}
	}
}
