package domain

import (
	"fmt"
	"strings"
	"time"
)

// LookupStatus represents the lifecycle state of a single BIN lookup.
type LookupStatus string

const (
	LookupStatusPending    LookupStatus = "pending"
	LookupStatusProcessing LookupStatus = "processing"
	LookupStatusCompleted  LookupStatus = "completed"
	LookupStatusFailed     LookupStatus = "failed"
)

func (s LookupStatus) String() string { return string(s) }

func (s LookupStatus) IsValid() bool {
	switch s {
	case LookupStatusPending, LookupStatusProcessing, LookupStatusCompleted, LookupStatusFailed:
		return true
	}
	return false
}

func (s LookupStatus) IsTerminal() bool {
	return s == LookupStatusCompleted || s == LookupStatusFailed
}

// CanTransitionTo validates lookup transitions. A processing lookup may move
// back to pending when a retryable failure gets rescheduled.
func (s LookupStatus) CanTransitionTo(next LookupStatus) bool {
	switch s {
	case LookupStatusPending:
		return next == LookupStatusProcessing || next == LookupStatusFailed
	case LookupStatusProcessing:
		return next == LookupStatusPending || next == LookupStatusCompleted || next == LookupStatusFailed
	}
	return false
}

func ParseLookupStatusFromString(s string) (LookupStatus, error) {
	st := LookupStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid lookup status %q", ErrValidation, s)
	}
	return st, nil
}

// BIN length bounds (decimal digits).
const (
	MinBinLength = 6
	MaxBinLength = 8
)

// IsValidBinNumber reports whether the value is a purely numeric BIN of
// 6 to 8 digits.
func IsValidBinNumber(bin string) bool {
	if len(bin) < MinBinLength || len(bin) > MaxBinLength {
		return false
	}
	for _, r := range bin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Lookup is one BIN queued for enrichment within an Import.
type Lookup struct {
	ID              string
	BinImportID     string
	BinNumber       string
	Status          LookupStatus
	Attempts        int
	NextRetryAt     *time.Time
	LastAttemptedAt *time.Time
	ErrorMessage    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (l *Lookup) Validate() error {
	if strings.TrimSpace(l.BinImportID) == "" {
		return fmt.Errorf("%w: bin import id is required", ErrValidation)
	}
	if !IsValidBinNumber(l.BinNumber) {
		return fmt.Errorf("%w: invalid bin number %q", ErrValidation, l.BinNumber)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("%w: invalid lookup status %q", ErrValidation, l.Status)
	}
	return nil
}
