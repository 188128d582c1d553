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
	defaultSweepInterval = time.Minute
	defaultSweepLimit    = 100

	// stuckPendingGrace gives freshly published messages time to be consumed
	// before a pending lookup without a retry schedule counts as lost.
	stuckPendingGrace = 10 * time.Minute

	// staleProcessingGrace exceeds the lookup invocation timeout so only
	// attempts whose worker died are reclaimed.
	staleProcessingGrace = lookupInvocationTimeout + 30*time.Second
)

// RecoverySweeper re-dispatches lookups whose queue message was lost and
// reclaims lookups stranded in processing by a crashed worker.
type RecoverySweeper struct {
	lookups   repository.LookupRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewRecoverySweeper(
	lookups repository.LookupRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RecoverySweeper, error) {
	if lookups == nil {
		return nil, fmt.Errorf("lookup repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoverySweeper{
		lookups:   lookups,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *RecoverySweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("recovery sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *RecoverySweeper) sweep(ctx context.Context) error {
	now := s.now().UTC()

	if err := s.redispatchStuckPending(ctx, now); err != nil {
		return err
	}
	return s.reclaimStaleProcessing(ctx, now)
}

func (s *RecoverySweeper) redispatchStuckPending(ctx context.Context, now time.Time) error {
	stuck, err := s.lookups.FindStuckPending(ctx, now.Add(-stuckPendingGrace), s.limit)
	if err != nil {
		return fmt.Errorf("failed to find stuck pending lookups: %w", err)
	}

	for i := range stuck {
		lookup := stuck[i]
		msg := queue.LookupMessage{
			LookupID:  lookup.ID,
			ImportID:  lookup.BinImportID,
			BinNumber: lookup.BinNumber,
		}

		if err := s.publisher.Publish(ctx, queue.LookupQueue, msg); err != nil {
			s.logger.Error("failed to re-dispatch stuck lookup",
				zap.String("lookupId", lookup.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("re-dispatched stuck lookup",
			zap.String("lookupId", lookup.ID),
			zap.String("importId", lookup.BinImportID),
		)
	}

	return nil
}

func (s *RecoverySweeper) reclaimStaleProcessing(ctx context.Context, now time.Time) error {
	stale, err := s.lookups.FindStaleProcessing(ctx, now.Add(-staleProcessingGrace), s.limit)
	if err != nil {
		return fmt.Errorf("failed to find stale processing lookups: %w", err)
	}

	for i := range stale {
		lookup := stale[i]

		reset, err := s.lookups.ResetToPending(ctx, lookup.ID)
		if err != nil {
			s.logger.Error("failed to reset stale lookup",
				zap.String("lookupId", lookup.ID),
				zap.Error(err),
			)
			continue
		}
		if !reset {
			// Resolved between the scan and the reset.
			continue
		}

		msg := queue.LookupMessage{
			LookupID:  lookup.ID,
			ImportID:  lookup.BinImportID,
			BinNumber: lookup.BinNumber,
		}
		if err := s.publisher.Publish(ctx, queue.LookupQueue, msg); err != nil {
			s.logger.Error("failed to re-dispatch reclaimed lookup",
				zap.String("lookupId", lookup.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Warn("reclaimed stale processing lookup",
			zap.String("lookupId", lookup.ID),
			zap.String("importId", lookup.BinImportID),
		)
	}

	return nil
}
