package service

import (
	"context"
	"testing"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"go.uber.org/zap"
)

func newRecoverySweeper(t *testing.T, lookups *fakeLookupRepo, publisher *fakePublisher) *RecoverySweeper {
	t.Helper()

	sweeper, err := NewRecoverySweeper(lookups, publisher, time.Second, 50, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRecoverySweeper() error = %v", err)
	}
	sweeper.now = func() time.Time { return time.Unix(1_700_000_000, 0).UTC() }
	return sweeper
}

func TestRecoverySweeperRedispatchesStuckPending(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()

	lookups := &fakeLookupRepo{
		findStuckPendingFn: func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error) {
			if want := now.Add(-stuckPendingGrace); !cutoff.Equal(want) {
				t.Fatalf("cutoff = %v, want %v", cutoff, want)
			}
			return []domain.Lookup{{ID: "l1", BinImportID: "imp-1", BinNumber: "456789"}}, nil
		},
	}
	publisher := &fakePublisher{}

	sweeper := newRecoverySweeper(t, lookups, publisher)

	if err := sweeper.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(publisher.published) != 1 || publisher.published[0].LookupID != "l1" {
		t.Fatalf("published = %+v, want single l1 message", publisher.published)
	}
}

func TestRecoverySweeperReclaimsStaleProcessing(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()

	var resetIDs []string
	lookups := &fakeLookupRepo{
		findStaleProcessingFn: func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error) {
			if want := now.Add(-staleProcessingGrace); !cutoff.Equal(want) {
				t.Fatalf("cutoff = %v, want %v", cutoff, want)
			}
			return []domain.Lookup{
				{ID: "l1", BinImportID: "imp-1", BinNumber: "456789", Status: domain.LookupStatusProcessing},
				{ID: "l2", BinImportID: "imp-1", BinNumber: "535522", Status: domain.LookupStatusProcessing},
			}, nil
		},
		resetToPendingFn: func(ctx context.Context, id string) (bool, error) {
			resetIDs = append(resetIDs, id)
			// l2 resolved between scan and reset.
			return id == "l1", nil
		},
	}
	publisher := &fakePublisher{}

	sweeper := newRecoverySweeper(t, lookups, publisher)

	if err := sweeper.sweep(context.Background()); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	if len(resetIDs) != 2 {
		t.Fatalf("reset attempts = %v, want both lookups", resetIDs)
	}
	if len(publisher.published) != 1 || publisher.published[0].LookupID != "l1" {
		t.Fatalf("published = %+v, want only the reclaimed lookup", publisher.published)
	}
}

func TestRecoverySweeperStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	sweeper, err := NewRecoverySweeper(&fakeLookupRepo{}, &fakePublisher{}, 5*time.Millisecond, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRecoverySweeper() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestNewRecoverySweeperDefaults(t *testing.T) {
	t.Parallel()

	sweeper, err := NewRecoverySweeper(&fakeLookupRepo{}, &fakePublisher{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewRecoverySweeper() error = %v", err)
	}
	if sweeper.interval != defaultSweepInterval {
		t.Fatalf("interval = %v, want %v", sweeper.interval, defaultSweepInterval)
	}
	if sweeper.limit != defaultSweepLimit {
		t.Fatalf("limit = %d, want %d", sweeper.limit, defaultSweepLimit)
	}
}
