package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ImportStatus represents the lifecycle state of a BIN import.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

func (s ImportStatus) String() string { return string(s) }

func (s ImportStatus) IsValid() bool {
	switch s {
	case ImportStatusPending, ImportStatusProcessing, ImportStatusCompleted, ImportStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// CanTransitionTo validates the pending→processing→{completed,failed} lifecycle.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	switch s {
	case ImportStatusPending:
		return next == ImportStatusProcessing
	case ImportStatusProcessing:
		return next == ImportStatusCompleted || next == ImportStatusFailed
	}
	return false
}

func ParseImportStatusFromString(s string) (ImportStatus, error) {
	st := ImportStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid import status %q", ErrValidation, s)
	}
	return st, nil
}

// Import tracks the aggregate progress of one uploaded BIN file.
type Import struct {
	ID            string
	Filename      string
	FileSize      int64
	TotalBins     int
	ProcessedBins int
	FailedBins    int
	Status        ImportStatus
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProgressPercentage returns how much of the batch has resolved, 0 when the
// import holds no bins.
func (i *Import) ProgressPercentage() int {
	if i.TotalBins == 0 {
		return 0
	}
	return int(math.Round(float64(i.ProcessedBins+i.FailedBins) / float64(i.TotalBins) * 100))
}

// SuccessRate returns the share of resolved bins that completed successfully,
// rounded to two decimals, 0.0 before anything resolved.
func (i *Import) SuccessRate() float64 {
	resolved := i.ProcessedBins + i.FailedBins
	if resolved == 0 {
		return 0.0
	}
	return math.Round(float64(i.ProcessedBins)/float64(resolved)*100*100) / 100
}
