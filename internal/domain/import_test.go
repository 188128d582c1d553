package domain

import "testing"

func TestImportStatusTransitions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		from    ImportStatus
		to      ImportStatus
		allowed bool
	}{
		{name: "pending to processing", from: ImportStatusPending, to: ImportStatusProcessing, allowed: true},
		{name: "pending to completed", from: ImportStatusPending, to: ImportStatusCompleted, allowed: false},
		{name: "processing to completed", from: ImportStatusProcessing, to: ImportStatusCompleted, allowed: true},
		{name: "processing to failed", from: ImportStatusProcessing, to: ImportStatusFailed, allowed: true},
		{name: "processing to pending", from: ImportStatusProcessing, to: ImportStatusPending, allowed: false},
		{name: "completed is terminal", from: ImportStatusCompleted, to: ImportStatusProcessing, allowed: false},
		{name: "failed is terminal", from: ImportStatusFailed, to: ImportStatusProcessing, allowed: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
				t.Fatalf("CanTransitionTo(%s→%s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
			}
		})
	}
}

func TestParseImportStatusFromString(t *testing.T) {
	t.Parallel()

	status, err := ParseImportStatusFromString("  Processing ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != ImportStatusProcessing {
		t.Fatalf("status = %s, want processing", status)
	}

	if _, err := ParseImportStatusFromString("queued"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestImportProgressPercentage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		total     int
		processed int
		failed    int
		want      int
	}{
		{name: "empty import", total: 0, processed: 0, failed: 0, want: 0},
		{name: "nothing resolved", total: 10, processed: 0, failed: 0, want: 0},
		{name: "half resolved", total: 10, processed: 3, failed: 2, want: 50},
		{name: "all resolved", total: 4, processed: 3, failed: 1, want: 100},
		{name: "rounds to nearest", total: 3, processed: 1, failed: 0, want: 33},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			imp := &Import{TotalBins: tc.total, ProcessedBins: tc.processed, FailedBins: tc.failed}
			if got := imp.ProgressPercentage(); got != tc.want {
				t.Fatalf("ProgressPercentage() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestImportSuccessRate(t *testing.T) {
	t.Parallel()

	imp := &Import{TotalBins: 10, ProcessedBins: 0, FailedBins: 0}
	if got := imp.SuccessRate(); got != 0.0 {
		t.Fatalf("SuccessRate() = %v, want 0.0 before any resolution", got)
	}

	imp = &Import{TotalBins: 3, ProcessedBins: 2, FailedBins: 1}
	if got := imp.SuccessRate(); got != 66.67 {
		t.Fatalf("SuccessRate() = %v, want 66.67", got)
	}

	imp = &Import{TotalBins: 5, ProcessedBins: 0, FailedBins: 5}
	if got := imp.SuccessRate(); got != 0.0 {
		t.Fatalf("SuccessRate() = %v, want 0.0 for all-failed import", got)
	}
}
