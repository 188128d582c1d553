package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"go.uber.org/zap"
)

// ProgressRecomputer refreshes an import's aggregate counters from its
// lookup rows.
type ProgressRecomputer interface {
	Recompute(ctx context.Context, importID string) error
}

// ProgressService recomputes import progress from the lookup table instead of
// incrementing counters, so concurrent and repeated calls stay commutative.
type ProgressService struct {
	imports repository.ImportRepository
	lookups repository.LookupRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewProgressService(
	imports repository.ImportRepository,
	lookups repository.LookupRepository,
	logger *zap.Logger,
) (*ProgressService, error) {
	if imports == nil {
		return nil, fmt.Errorf("import repository is required")
	}
	if lookups == nil {
		return nil, fmt.Errorf("lookup repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ProgressService{
		imports: imports,
		lookups: lookups,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *ProgressService) Recompute(ctx context.Context, importID string) error {
	imp, err := s.imports.GetByID(ctx, importID)
	if errors.Is(err, domain.ErrNotFound) {
		// The import was deleted while its lookups were still in flight.
		s.logger.Warn("skipping progress recompute for missing import",
			zap.String("importId", importID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load import for recompute: %w", err)
	}

	if imp.Status.IsTerminal() {
		return nil
	}

	stats, err := s.lookups.GetStatsByImport(ctx, importID)
	if err != nil {
		return fmt.Errorf("failed to aggregate lookup stats: %w", err)
	}

	if err := s.imports.UpdateProgress(ctx, importID, stats.Completed, stats.Failed); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to update import progress: %w", err)
	}

	if stats.Completed+stats.Failed < imp.TotalBins {
		return nil
	}

	completed, err := s.imports.CompleteIfProcessing(ctx, importID, stats.Completed, stats.Failed, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to complete import: %w", err)
	}
	if completed {
		s.logger.Info("import completed",
			zap.String("importId", importID),
			zap.Int("processed", stats.Completed),
			zap.Int("failed", stats.Failed),
		)
	}

	return nil
}
