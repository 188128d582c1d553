package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/binlookup-engine/internal/binapi"
	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"github.com/kursadbilgin/binlookup-engine/internal/observability"
	"github.com/kursadbilgin/binlookup-engine/internal/queue"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	// maxLookupAttempts is the only retry ceiling for a lookup; the BIN API
	// client's internal retries are transport-level and do not count here.
	maxLookupAttempts = 3

	lookupInvocationTimeout = 120 * time.Second
	retryBaseDelay          = 10 * time.Second
	maxRescheduleDelay      = 5 * time.Minute

	// retryDeadline bounds how long after creation a lookup may still be
	// rescheduled.
	retryDeadline = 2 * time.Hour
)

// BinAPI resolves one BIN against the upstream database.
type BinAPI interface {
	Lookup(ctx context.Context, bin string) (*binapi.EnrichmentFields, error)
}

// LookupService processes one queued lookup per message: it claims the row,
// calls the BIN API, stores the result or classifies the failure, and always
// refreshes the owning import's progress.
type LookupService struct {
	lookups  repository.LookupRepository
	client   BinAPI
	progress ProgressRecomputer
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewLookupService(
	lookups repository.LookupRepository,
	client BinAPI,
	progress ProgressRecomputer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*LookupService, error) {
	if lookups == nil {
		return nil, fmt.Errorf("lookup repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("bin api client is required")
	}
	if progress == nil {
		return nil, fmt.Errorf("progress recomputer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LookupService{
		lookups:  lookups,
		client:   client,
		progress: progress,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}, nil
}

// Process handles one lookup message. A nil return acks the message; errors
// are returned only for infrastructure failures so the delivery gets requeued.
func (s *LookupService) Process(ctx context.Context, msg queue.LookupMessage) error {
	now := s.now().UTC()

	lookup, err := s.lookups.ClaimForProcessing(ctx, msg.LookupID, now)
	if errors.Is(err, domain.ErrNotFound) {
		// The owning import was deleted after the message was enqueued.
		s.logger.Warn("lookup not found during claim, dropping message",
			zap.String("lookupId", msg.LookupID),
		)
		return nil
	}
	if errors.Is(err, domain.ErrConflict) {
		// Duplicate delivery of an already resolved lookup.
		s.logger.Debug("lookup already terminal, dropping message",
			zap.String("lookupId", msg.LookupID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim lookup %s: %w", msg.LookupID, err)
	}

	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()
	start := s.now()

	lookupCtx, cancel := context.WithTimeout(ctx, lookupInvocationTimeout)
	fields, lookupErr := s.client.Lookup(lookupCtx, lookup.BinNumber)
	cancel()

	s.metrics.ObserveLookupDuration(s.now().Sub(start))

	if lookupErr == nil {
		if err := s.completeLookup(ctx, lookup, fields); err != nil {
			return err
		}
	} else if err := s.handleFailure(ctx, lookup, now, lookupErr); err != nil {
		return err
	}

	if err := s.progress.Recompute(ctx, lookup.BinImportID); err != nil {
		s.logger.Error("failed to recompute import progress",
			zap.String("importId", lookup.BinImportID),
			zap.Error(err),
		)
	}

	return nil
}

func (s *LookupService) completeLookup(ctx context.Context, lookup *domain.Lookup, fields *binapi.EnrichmentFields) error {
	data := &domain.BinData{
		ID:          s.newID(),
		BinLookupID: lookup.ID,
		BinNumber:   lookup.BinNumber,
	}
	if fields != nil {
		data.BankName = fields.BankName
		data.CardType = fields.CardType
		data.CardBrand = fields.CardBrand
		data.CountryCode = fields.CountryCode
		data.CountryName = fields.CountryName
		data.Website = fields.Website
		data.Phone = fields.Phone
		data.APIResponse = fields.RawResponse
	}

	if err := s.lookups.Complete(ctx, lookup.ID, data); err != nil {
		return fmt.Errorf("failed to store lookup result for %s: %w", lookup.ID, err)
	}

	s.metrics.IncLookupCompleted()
	s.logger.Info("lookup completed",
		zap.String("lookupId", lookup.ID),
		zap.String("bin", lookup.BinNumber),
		zap.Int("attempts", lookup.Attempts),
	)
	return nil
}

func (s *LookupService) handleFailure(ctx context.Context, lookup *domain.Lookup, now time.Time, lookupErr error) error {
	errMsg := lookupErr.Error()
	withinDeadline := now.Sub(lookup.CreatedAt) < retryDeadline

	if binapi.IsRetryable(lookupErr) && lookup.Attempts < maxLookupAttempts && withinDeadline {
		nextRetryAt := now.Add(rescheduleDelay(lookup.Attempts))
		if err := s.lookups.ScheduleRetry(ctx, lookup.ID, errMsg, nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule retry for %s: %w", lookup.ID, err)
		}

		s.metrics.IncRetryScheduled()
		s.logger.Info("lookup retry scheduled",
			zap.String("lookupId", lookup.ID),
			zap.String("bin", lookup.BinNumber),
			zap.Int("attempts", lookup.Attempts),
			zap.Time("nextRetryAt", nextRetryAt),
			zap.Error(lookupErr),
		)
		return nil
	}

	if err := s.lookups.MarkFailed(ctx, lookup.ID, errMsg); err != nil {
		return fmt.Errorf("failed to mark lookup %s failed: %w", lookup.ID, err)
	}

	s.metrics.IncLookupFailed(failureReason(lookupErr))
	s.logger.Warn("lookup failed permanently",
		zap.String("lookupId", lookup.ID),
		zap.String("bin", lookup.BinNumber),
		zap.Int("attempts", lookup.Attempts),
		zap.Error(lookupErr),
	)
	return nil
}

// rescheduleDelay doubles per attempt already made, capped at five minutes.
func rescheduleDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := retryBaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= maxRescheduleDelay {
			return maxRescheduleDelay
		}
	}
	return delay
}

func failureReason(err error) string {
	var apiErr *binapi.APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
