package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

// DefaultEnrollmentPageSize bounds enrollment queries and the size of each
// atomic batch written from them.
const DefaultEnrollmentPageSize = 500

// PropagationConfig holds the settings shared by the email change and
// deletion services.
type PropagationConfig struct {
	CallTimeout        time.Duration
	EnrollmentPageSize int
}

func (c PropagationConfig) withDefaults() PropagationConfig {
	if c.EnrollmentPageSize <= 0 {
		c.EnrollmentPageSize = DefaultEnrollmentPageSize
	}
	return c
}

type emailService struct {
	identity ports.IdentityGateway
	store    ports.DocumentStore
	cfg      PropagationConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewEmailService returns the EmailChangeService.
func NewEmailService(identity ports.IdentityGateway, store ports.DocumentStore, cfg PropagationConfig, log zerolog.Logger) ports.EmailChangeService {
	return &emailService{
		identity: identity,
		store:    store,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		log:      log,
	}
}

// ChangeEmail moves the account to newEmail and rewrites every denormalised
// copy of the old email. A failure of any step fails the whole call; it is
// safe to retry.
//
// The uniqueness pre-check only gives a fast, friendly error: a concurrent
// request can still claim newEmail before UpdateAccount runs, in which case
// the identity store rejects the update with ErrEmailConflict.
func (s *emailService) ChangeEmail(ctx context.Context, accountID, newEmail string) (*ports.EmailChangeResult, error) {
	accountID = strings.TrimSpace(accountID)
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	newEmail = normalizeEmail(newEmail)
	if err := validateEmail("newEmail", newEmail); err != nil {
		return nil, err
	}

	current, owner, err := s.loadAccounts(ctx, accountID, newEmail)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.ID != current.ID {
		return nil, fmt.Errorf("change email: %w: %s", domain.ErrEmailConflict, newEmail)
	}

	if current.Email == newEmail {
		return s.repair(ctx, accountID, newEmail)
	}
	oldEmail := current.Email
	result := &ports.EmailChangeResult{
		AccountID: accountID,
		OldEmail:  oldEmail,
		NewEmail:  newEmail,
	}

	now := s.now().UTC()
	var firstPage []domain.Document

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := callContext(gctx, s.cfg.CallTimeout)
		defer cancel()
		email := newEmail
		if err := s.identity.UpdateAccount(cctx, accountID, domain.AccountUpdate{Email: &email}); err != nil {
			return fmt.Errorf("update account email: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.updateProfileEmail(gctx, accountID, newEmail, now)
	})
	g.Go(func() error {
		page, err := s.enrollmentsByEmail(gctx, oldEmail)
		if err != nil {
			return err
		}
		firstPage = page
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	updated, err := s.rewriteEnrollments(ctx, newEmail, firstPage, now, func(ctx context.Context) ([]domain.Document, error) {
		return s.enrollmentsByEmail(ctx, oldEmail)
	})
	if err != nil {
		return nil, err
	}
	// Enrollments left behind by an earlier failed change carry neither
	// address; they still reference the account id.
	swept, err := s.rewriteStaleEnrollments(ctx, accountID, newEmail, now)
	if err != nil {
		return nil, err
	}
	result.EnrollmentsUpdated = updated + swept

	s.log.Info().
		Str("uid", accountID).
		Str("old_email", oldEmail).
		Str("new_email", newEmail).
		Int("enrollments_updated", result.EnrollmentsUpdated).
		Msg("student email changed")

	return result, nil
}

// repair finishes a change whose account update already applied: the profile
// and any enrollment of the account still holding another address are moved
// to newEmail. With nothing left to move it performs no writes.
func (s *emailService) repair(ctx context.Context, accountID, newEmail string) (*ports.EmailChangeResult, error) {
	pending, err := s.pendingProfileEmail(ctx, accountID, newEmail)
	if err != nil {
		return nil, err
	}
	result := &ports.EmailChangeResult{AccountID: accountID, OldEmail: newEmail, NewEmail: newEmail}
	now := s.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	if pending != "" {
		result.OldEmail = pending
		g.Go(func() error {
			return s.updateProfileEmail(gctx, accountID, newEmail, now)
		})
	}
	var firstPage []domain.Document
	g.Go(func() error {
		page, err := s.staleEnrollments(gctx, accountID, newEmail)
		if err != nil {
			return err
		}
		firstPage = page
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	updated, err := s.rewriteEnrollments(ctx, newEmail, firstPage, now, func(ctx context.Context) ([]domain.Document, error) {
		return s.staleEnrollments(ctx, accountID, newEmail)
	})
	if err != nil {
		return nil, err
	}
	result.EnrollmentsUpdated = updated

	if pending != "" || updated > 0 {
		s.log.Info().
			Str("uid", accountID).
			Str("old_email", result.OldEmail).
			Str("new_email", newEmail).
			Int("enrollments_updated", updated).
			Msg("student email change completed")
	}
	return result, nil
}

func (s *emailService) updateProfileEmail(ctx context.Context, accountID, newEmail string, now time.Time) error {
	cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
	defer cancel()
	err := s.store.Update(cctx, domain.CollectionProfiles, accountID, map[string]any{
		domain.FieldEmail:     newEmail,
		domain.FieldUpdatedAt: now,
	})
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("update profile email: %w: %s", domain.ErrProfileNotFound, accountID)
	}
	if err != nil {
		return fmt.Errorf("update profile email: %w", err)
	}
	return nil
}

// loadAccounts fetches the account being changed and, concurrently, whichever
// account already owns newEmail (nil when none does).
func (s *emailService) loadAccounts(ctx context.Context, accountID, newEmail string) (current, owner *domain.Account, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := callContext(gctx, s.cfg.CallTimeout)
		defer cancel()
		acct, err := s.identity.GetAccount(cctx, accountID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		current = acct
		return nil
	})
	g.Go(func() error {
		cctx, cancel := callContext(gctx, s.cfg.CallTimeout)
		defer cancel()
		acct, err := s.identity.GetAccountByEmail(cctx, newEmail)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup new email owner: %w", err)
		}
		owner = acct
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return current, owner, nil
}

// pendingProfileEmail returns the profile's email when the account already
// carries newEmail but the profile does not, and "" when nothing is left to
// propagate.
func (s *emailService) pendingProfileEmail(ctx context.Context, accountID, newEmail string) (string, error) {
	cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
	defer cancel()
	doc, err := s.store.Get(cctx, domain.CollectionProfiles, accountID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	stored := normalizeEmail(domain.ProfileFromDocument(*doc).Email)
	if stored == "" || stored == newEmail {
		return "", nil
	}
	return stored, nil
}

func (s *emailService) enrollmentsByEmail(ctx context.Context, email string) ([]domain.Document, error) {
	cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
	defer cancel()
	docs, err := s.store.QueryEquals(cctx, domain.CollectionEnrollments, domain.FieldStudentEmail, email, s.cfg.EnrollmentPageSize)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	return docs, nil
}

// staleEnrollments returns a page of the account's enrollments whose
// studentEmail is not email.
func (s *emailService) staleEnrollments(ctx context.Context, accountID, email string) ([]domain.Document, error) {
	cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
	defer cancel()
	docs, err := s.store.QueryEqualsNot(cctx, domain.CollectionEnrollments,
		domain.FieldStudentID, accountID,
		domain.FieldStudentEmail, email,
		s.cfg.EnrollmentPageSize)
	if err != nil {
		return nil, fmt.Errorf("query stale enrollments: %w", err)
	}
	return docs, nil
}

func (s *emailService) rewriteStaleEnrollments(ctx context.Context, accountID, newEmail string, now time.Time) (int, error) {
	page, err := s.staleEnrollments(ctx, accountID, newEmail)
	if err != nil {
		return 0, err
	}
	return s.rewriteEnrollments(ctx, newEmail, page, now, func(ctx context.Context) ([]domain.Document, error) {
		return s.staleEnrollments(ctx, accountID, newEmail)
	})
}

// rewriteEnrollments writes newEmail into page and every following page
// returned by next, one atomic batch per page. next is called only after the
// previous batch committed, so rewritten documents drop out of it.
func (s *emailService) rewriteEnrollments(
	ctx context.Context,
	newEmail string,
	page []domain.Document,
	now time.Time,
	next func(context.Context) ([]domain.Document, error),
) (int, error) {
	total := 0
	for len(page) > 0 {
		ops := make([]ports.BatchOp, 0, len(page))
		for _, doc := range page {
			ops = append(ops, ports.BatchOp{
				Kind:       ports.BatchUpdate,
				Collection: domain.CollectionEnrollments,
				ID:         doc.ID,
				Fields: map[string]any{
					domain.FieldStudentEmail: newEmail,
					domain.FieldUpdatedAt:    now,
				},
			})
		}

		cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
		err := s.store.AtomicBatch(cctx, ops)
		cancel()
		if err != nil {
			return total, fmt.Errorf("rewrite enrollments: %w", err)
		}
		total += len(page)

		if len(page) < s.cfg.EnrollmentPageSize {
			break
		}
		var qerr error
		if page, qerr = next(ctx); qerr != nil {
			return total, qerr
		}
	}
	return total, nil
}
