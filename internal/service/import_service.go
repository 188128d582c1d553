package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"github.com/kursadbilgin/binlookup-engine/internal/observability"
	"github.com/kursadbilgin/binlookup-engine/internal/queue"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	maxUploadBytes     = 10 << 20
	recentFailureLimit = 5
)

var allowedUploadExtensions = map[string]struct{}{
	".csv": {},
	".txt": {},
}

// binColumnAliases are the accepted header names for the BIN column, matched
// case-insensitively.
var binColumnAliases = map[string]struct{}{
	"bin":        {},
	"bin_number": {},
	"bin_code":   {},
}

// ImportStatistics is the aggregate view of one import, including its most
// recent lookup failures.
type ImportStatistics struct {
	Import       *domain.Import
	Pending      int
	Completed    int
	Failed       int
	RecentErrors []LookupFailure
}

// LookupFailure describes one permanently failed lookup.
type LookupFailure struct {
	BinNumber    string
	ErrorMessage string
	Attempts     int
	FailedAt     time.Time
}

// ImportService validates uploaded BIN files, fans them out into individual
// lookups and dispatches those to the work queue.
type ImportService struct {
	imports   repository.ImportRepository
	lookups   repository.LookupRepository
	publisher queue.Publisher
	progress  ProgressRecomputer
	metrics   *observability.Metrics
	logger    *zap.Logger
	newID     func() string
}

func NewImportService(
	imports repository.ImportRepository,
	lookups repository.LookupRepository,
	publisher queue.Publisher,
	progress ProgressRecomputer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*ImportService, error) {
	if imports == nil {
		return nil, fmt.Errorf("import repository is required")
	}
	if lookups == nil {
		return nil, fmt.Errorf("lookup repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if progress == nil {
		return nil, fmt.Errorf("progress recomputer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ImportService{
		imports:   imports,
		lookups:   lookups,
		publisher: publisher,
		progress:  progress,
		metrics:   metrics,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// CreateFromUpload validates the uploaded file, extracts its unique valid
// BINs, persists the import with one lookup per BIN and enqueues each lookup.
// Publish failures do not fail the upload; the recovery sweeper re-dispatches
// lookups whose message was lost.
func (s *ImportService) CreateFromUpload(ctx context.Context, filename string, size int64, file io.Reader) (*domain.Import, error) {
	var validation domain.ValidationErrors

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedUploadExtensions[ext]; !ok {
		validation.Errors = append(validation.Errors, "file must be a csv or txt file")
	}
	if size > maxUploadBytes {
		validation.Errors = append(validation.Errors, "file must not exceed 10 MB")
	}

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if int64(len(content)) > maxUploadBytes {
		validation.Errors = append(validation.Errors, "file must not exceed 10 MB")
	}
	if len(content) == 0 {
		validation.Errors = append(validation.Errors, "file must not be empty")
	}

	// Structural checks only make sense once the basic ones passed.
	var bins []string
	if len(validation.Errors) == 0 {
		bins, err = extractBins(content)
		if err != nil {
			validation.Errors = append(validation.Errors, err.Error())
		}
	}

	if len(validation.Errors) > 0 {
		return nil, &validation
	}

	imp := &domain.Import{
		ID:        s.newID(),
		Filename:  filepath.Base(filename),
		FileSize:  int64(len(content)),
		TotalBins: len(bins),
		Status:    domain.ImportStatusPending,
	}

	lookups := make([]*domain.Lookup, 0, len(bins))
	for _, bin := range bins {
		lookups = append(lookups, &domain.Lookup{
			ID:          s.newID(),
			BinImportID: imp.ID,
			BinNumber:   bin,
			Status:      domain.LookupStatusPending,
		})
	}

	if err := s.imports.CreateWithLookups(ctx, imp, lookups); err != nil {
		return nil, fmt.Errorf("failed to persist import: %w", err)
	}
	s.metrics.IncImportCreated()

	published := 0
	for _, lookup := range lookups {
		msg := queue.LookupMessage{
			LookupID:  lookup.ID,
			ImportID:  imp.ID,
			BinNumber: lookup.BinNumber,
		}
		if err := s.publisher.Publish(ctx, queue.LookupQueue, msg); err != nil {
			s.logger.Error("failed to enqueue lookup, sweeper will re-dispatch",
				zap.String("importId", imp.ID),
				zap.String("lookupId", lookup.ID),
				zap.Error(err),
			)
			continue
		}
		published++
	}

	s.logger.Info("import accepted",
		zap.String("importId", imp.ID),
		zap.String("filename", imp.Filename),
		zap.Int("totalBins", imp.TotalBins),
		zap.Int("published", published),
	)

	if len(lookups) == 0 {
		// Nothing to process, close the import out right away.
		if err := s.progress.Recompute(ctx, imp.ID); err != nil {
			s.logger.Error("failed to finalize empty import", zap.String("importId", imp.ID), zap.Error(err))
		}
		return s.imports.GetByID(ctx, imp.ID)
	}

	return imp, nil
}

func (s *ImportService) GetByID(ctx context.Context, id string) (*domain.Import, error) {
	return s.imports.GetByID(ctx, id)
}

func (s *ImportService) List(ctx context.Context, params repository.ImportListParams) ([]domain.Import, int64, error) {
	return s.imports.List(ctx, params)
}

func (s *ImportService) Delete(ctx context.Context, id string) error {
	if err := s.imports.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("import deleted", zap.String("importId", id))
	return nil
}

// Statistics returns the import together with its aggregate lookup counters
// and the most recent failures.
func (s *ImportService) Statistics(ctx context.Context, id string) (*ImportStatistics, error) {
	imp, err := s.imports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats, err := s.lookups.GetStatsByImport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate lookup stats: %w", err)
	}

	failures, err := s.lookups.RecentFailures(ctx, id, recentFailureLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent failures: %w", err)
	}

	recent := make([]LookupFailure, 0, len(failures))
	for i := range failures {
		failure := LookupFailure{
			BinNumber: failures[i].BinNumber,
			Attempts:  failures[i].Attempts,
			FailedAt:  failures[i].UpdatedAt,
		}
		if failures[i].ErrorMessage != nil {
			failure.ErrorMessage = *failures[i].ErrorMessage
		}
		recent = append(recent, failure)
	}

	return &ImportStatistics{
		Import:       imp,
		Pending:      stats.Pending(),
		Completed:    stats.Completed,
		Failed:       stats.Failed,
		RecentErrors: recent,
	}, nil
}

// extractBins parses the CSV content and returns the unique valid BINs in
// first-seen order. Rows whose field count differs from the header and values
// that are not 6 to 8 digits are skipped.
func extractBins(content []byte) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New("file could not be parsed as csv")
	}

	binColumn := -1
	for i, name := range header {
		if _, ok := binColumnAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
			binColumn = i
			break
		}
	}
	if binColumn == -1 {
		return nil, errors.New("file must contain a bin, bin_number or bin_code column")
	}

	seen := make(map[string]struct{})
	var bins []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Malformed rows are skipped, not fatal.
			continue
		}
		if len(row) != len(header) || binColumn >= len(row) {
			continue
		}

		bin := strings.TrimSpace(row[binColumn])
		if !domain.IsValidBinNumber(bin) {
			continue
		}
		if _, dup := seen[bin]; dup {
			continue
		}

		seen[bin] = struct{}{}
		bins = append(bins, bin)
	}

	return bins, nil
}
