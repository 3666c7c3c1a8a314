package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

const (
	branchAccount     = "account"
	branchProfile     = "profile"
	branchEnrollments = "enrollments"
)

type deletionService struct {
	identity ports.IdentityGateway
	store    ports.DocumentStore
	cfg      PropagationConfig
	log      zerolog.Logger
}

// NewDeletionService returns the DeletionService.
func NewDeletionService(identity ports.IdentityGateway, store ports.DocumentStore, cfg PropagationConfig, log zerolog.Logger) ports.DeletionService {
	return &deletionService{
		identity: identity,
		store:    store,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// DeleteStudent removes the account, its profile and its enrollments. The
// three branches run concurrently and are reported independently: a failed
// branch shows up in the result, it does not fail the call. Deleting an
// account that is already gone counts as success.
func (s *deletionService) DeleteStudent(ctx context.Context, accountID string) (*ports.DeletionResult, error) {
	accountID = strings.TrimSpace(accountID)
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}

	var (
		accountErr, profileErr, enrollErr error
		enrollmentsDeleted                int
	)

	var wg conc.WaitGroup
	wg.Go(func() { accountErr = s.deleteAccount(ctx, accountID) })
	wg.Go(func() { profileErr = s.deleteProfile(ctx, accountID) })
	wg.Go(func() { enrollmentsDeleted, enrollErr = s.deleteEnrollments(ctx, accountID) })
	if r := wg.WaitAndRecover(); r != nil {
		s.log.Error().Str("uid", accountID).Str("panic", r.String()).Msg("cascading deletion panicked")
		return nil, domain.Infrastructure("delete student", r.AsError())
	}

	result := &ports.DeletionResult{
		AccountID:          accountID,
		AccountDeleted:     accountErr == nil,
		ProfileDeleted:     profileErr == nil,
		EnrollmentsDeleted: enrollmentsDeleted,
		Errors:             map[string]string{},
	}
	for branch, err := range map[string]error{
		branchAccount:     accountErr,
		branchProfile:     profileErr,
		branchEnrollments: enrollErr,
	} {
		if err != nil {
			result.Errors[branch] = err.Error()
		}
	}

	evt := s.log.Info()
	if len(result.Errors) > 0 {
		evt = s.log.Warn().Interface("errors", result.Errors)
	}
	evt.Str("uid", accountID).
		Bool("account_deleted", result.AccountDeleted).
		Bool("profile_deleted", result.ProfileDeleted).
		Int("enrollments_deleted", enrollmentsDeleted).
		Msg("student deleted")

	return result, nil
}

func (s *deletionService) deleteAccount(ctx context.Context, accountID string) error {
	cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
	defer cancel()
	err := s.identity.DeleteAccount(cctx, accountID)
	if err == nil || errors.Is(err, domain.ErrAccountNotFound) {
		return nil
	}
	return fmt.Errorf("delete account: %w", err)
}

func (s *deletionService) deleteProfile(ctx context.Context, accountID string) error {
	cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
	defer cancel()
	if err := s.store.Delete(cctx, domain.CollectionProfiles, accountID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

// deleteEnrollments deletes enrollments referencing accountID one page at a
// time, each page in its own atomic batch, until a short page is seen.
func (s *deletionService) deleteEnrollments(ctx context.Context, accountID string) (int, error) {
	total := 0
	for {
		cctx, cancel := callContext(ctx, s.cfg.CallTimeout)
		page, err := s.store.QueryEquals(cctx, domain.CollectionEnrollments, domain.FieldStudentID, accountID, s.cfg.EnrollmentPageSize)
		cancel()
		if err != nil {
			return total, fmt.Errorf("query enrollments: %w", err)
		}
		if len(page) == 0 {
			return total, nil
		}

		ops := make([]ports.BatchOp, 0, len(page))
		for _, doc := range page {
			ops = append(ops, ports.BatchOp{
				Kind:       ports.BatchDelete,
				Collection: domain.CollectionEnrollments,
				ID:         doc.ID,
			})
		}
		cctx, cancel = callContext(ctx, s.cfg.CallTimeout)
		err = s.store.AtomicBatch(cctx, ops)
		cancel()
		if err != nil {
			return total, fmt.Errorf("delete enrollments: %w", err)
		}
		total += len(page)

		if len(page) < s.cfg.EnrollmentPageSize {
			return total, nil
		}
	}
}

