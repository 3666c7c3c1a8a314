package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

const (
	DefaultMaxBatch    = 500
	defaultConcurrency = 50
)

// Reconciler reconciles a single provisioning request.
type Reconciler interface {
	Reconcile(ctx context.Context, req ports.ProvisionRequest) ports.ProvisionOutcome
}

// ReportCache abstracts the idempotency store for bulk reports (Redis).
// Load returns nil, nil on a miss.
type ReportCache interface {
	Load(ctx context.Context, key string) (*ports.BulkReport, error)
	Store(ctx context.Context, key string, report *ports.BulkReport) error
}

// ProvisioningConfig holds the bulk provisioning limits.
type ProvisioningConfig struct {
	MaxBatch    int
	Concurrency int
	// Timeout is the wall-clock budget of a whole batch.
	Timeout time.Duration
}

type provisioningService struct {
	reconciler Reconciler
	cache      ReportCache
	cfg        ProvisioningConfig
	log        zerolog.Logger
}

// NewProvisioningService returns a ProvisioningService. cache may be nil.
func NewProvisioningService(reconciler Reconciler, cache ReportCache, cfg ProvisioningConfig, log zerolog.Logger) ports.ProvisioningService {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &provisioningService{
		reconciler: reconciler,
		cache:      cache,
		cfg:        cfg,
		log:        log,
	}
}

// Provision reconciles every student of the batch concurrently and folds the
// outcomes into one report. Only the pre-flight size checks fail the call.
func (s *provisioningService) Provision(ctx context.Context, in ports.BulkProvisionInput) (*ports.BulkReport, error) {
	n := len(in.Students)
	if n == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if n > s.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: %d students, limit is %d", domain.ErrBatchTooLarge, n, s.cfg.MaxBatch)
	}

	if in.IdempotencyKey != "" && s.cache != nil {
		cached, err := s.cache.Load(ctx, in.IdempotencyKey)
		if err != nil {
			s.log.Warn().Err(err).Str("idempotency_key", in.IdempotencyKey).Msg("report cache lookup failed, provisioning anyway")
		} else if cached != nil {
			s.log.Info().Str("idempotency_key", in.IdempotencyKey).Msg("idempotent replay")
			cached.Replayed = true
			return cached, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.Infrastructure("provision", err)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	report := foldOutcomes(s.fanOut(ctx, in.Students))

	s.log.Info().
		Int("batch_size", n).
		Int("succeeded", report.SuccessCount).
		Int("failed", report.FailureCount).
		Dur("elapsed", time.Since(started)).
		Msg("bulk provisioning finished")

	if in.IdempotencyKey != "" && s.cache != nil {
		if err := s.cache.Store(context.WithoutCancel(ctx), in.IdempotencyKey, report); err != nil {
			s.log.Warn().Err(err).Str("idempotency_key", in.IdempotencyKey).Msg("failed to cache bulk report")
		}
	}
	return report, nil
}

// fanOut runs one reconciliation task per request and returns every outcome.
// A failing or panicking item never affects its siblings.
func (s *provisioningService) fanOut(ctx context.Context, reqs []ports.ProvisionRequest) []ports.ProvisionOutcome {
	p := pool.NewWithResults[ports.ProvisionOutcome]().WithMaxGoroutines(s.cfg.Concurrency)
	for _, req := range reqs {
		p.Go(func() (out ports.ProvisionOutcome) {
			defer func() {
				if v := recover(); v != nil {
					s.log.Error().Interface("panic", v).Str("email", req.Email).Msg("reconcile panicked")
					out = ports.ProvisionOutcome{
						Email: req.Email,
						Err:   domain.Infrastructure("reconcile", fmt.Errorf("panic: %v", v)),
					}
				}
			}()
			return s.reconciler.Reconcile(ctx, req)
		})
	}
	return p.Wait()
}

func foldOutcomes(outcomes []ports.ProvisionOutcome) *ports.BulkReport {
	report := &ports.BulkReport{
		SuccessRecords: make([]ports.ProvisionedAccount, 0, len(outcomes)),
		FailedRecords:  []ports.ProvisionFailure{},
	}
	for _, o := range outcomes {
		if o.Success {
			report.SuccessRecords = append(report.SuccessRecords, ports.ProvisionedAccount{
				Email:     o.Email,
				AccountID: o.AccountID,
				Name:      o.Name,
			})
			continue
		}
		msg := "unknown error"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		report.FailedRecords = append(report.FailedRecords, ports.ProvisionFailure{Email: o.Email, Error: msg})
	}
	report.SuccessCount = len(report.SuccessRecords)
	report.FailureCount = len(report.FailedRecords)
	return report
}
