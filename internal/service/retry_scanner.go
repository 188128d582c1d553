package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/queue"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-enqueues lookups whose retry time has come.
type RetryScanner struct {
	lookups   repository.LookupRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewRetryScanner(
	lookups repository.LookupRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if lookups == nil {
		return nil, fmt.Errorf("lookup repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		lookups:   lookups,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueLookups, err := s.lookups.GetDueForRetry(ctx, s.now().UTC(), s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	for i := range dueLookups {
		lookup := dueLookups[i]
		msg := queue.LookupMessage{
			LookupID:  lookup.ID,
			ImportID:  lookup.BinImportID,
			BinNumber: lookup.BinNumber,
		}

		if err := s.publisher.Publish(ctx, queue.LookupQueue, msg); err != nil {
			s.logger.Error("failed to enqueue retry lookup",
				zap.String("lookupId", lookup.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.lookups.ClearNextRetryAt(ctx, lookup.ID); err != nil {
			s.logger.Error("failed to clear next retry timestamp after enqueue",
				zap.String("lookupId", lookup.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
