package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/binapi"
	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"github.com/kursadbilgin/binlookup-engine/internal/queue"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
)

type fakeImportRepo struct {
	createWithLookupsFn    func(ctx context.Context, imp *domain.Import, lookups []*domain.Lookup) error
	getByIDFn              func(ctx context.Context, id string) (*domain.Import, error)
	listFn                 func(ctx context.Context, params repository.ImportListParams) ([]domain.Import, int64, error)
	updateProgressFn       func(ctx context.Context, id string, processed, failed int) error
	completeIfProcessingFn func(ctx context.Context, id string, processed, failed int, completedAt time.Time) (bool, error)
	deleteFn               func(ctx context.Context, id string) error
}

func (f *fakeImportRepo) CreateWithLookups(ctx context.Context, imp *domain.Import, lookups []*domain.Lookup) error {
	if f.createWithLookupsFn == nil {
		return nil
	}
	return f.createWithLookupsFn(ctx, imp, lookups)
}

func (f *fakeImportRepo) GetByID(ctx context.Context, id string) (*domain.Import, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeImportRepo) List(ctx context.Context, params repository.ImportListParams) ([]domain.Import, int64, error) {
	if f.listFn == nil {
		return nil, 0, nil
	}
	return f.listFn(ctx, params)
}

func (f *fakeImportRepo) UpdateProgress(ctx context.Context, id string, processed, failed int) error {
	if f.updateProgressFn == nil {
		return nil
	}
	return f.updateProgressFn(ctx, id, processed, failed)
}

func (f *fakeImportRepo) CompleteIfProcessing(ctx context.Context, id string, processed, failed int, completedAt time.Time) (bool, error) {
	if f.completeIfProcessingFn == nil {
		return false, nil
	}
	return f.completeIfProcessingFn(ctx, id, processed, failed, completedAt)
}

func (f *fakeImportRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

type fakeLookupRepo struct {
	getByIDFn             func(ctx context.Context, id string) (*domain.Lookup, error)
	claimForProcessingFn  func(ctx context.Context, id string, now time.Time) (*domain.Lookup, error)
	completeFn            func(ctx context.Context, id string, data *domain.BinData) error
	scheduleRetryFn       func(ctx context.Context, id string, errorMessage string, nextRetryAt time.Time) error
	markFailedFn          func(ctx context.Context, id string, errorMessage string) error
	getDueForRetryFn      func(ctx context.Context, now time.Time, limit int) ([]domain.Lookup, error)
	clearNextRetryAtFn    func(ctx context.Context, id string) error
	getStatsByImportFn    func(ctx context.Context, importID string) (repository.LookupStats, error)
	recentFailuresFn      func(ctx context.Context, importID string, limit int) ([]domain.Lookup, error)
	listByImportFn        func(ctx context.Context, importID string, page, pageSize int) ([]domain.Lookup, int64, error)
	findStuckPendingFn    func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error)
	findStaleProcessingFn func(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error)
	resetToPendingFn      func(ctx context.Context, id string) (bool, error)
}

func (f *fakeLookupRepo) GetByID(ctx context.Context, id string) (*domain.Lookup, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeLookupRepo) ClaimForProcessing(ctx context.Context, id string, now time.Time) (*domain.Lookup, error) {
	if f.claimForProcessingFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.claimForProcessingFn(ctx, id, now)
}

func (f *fakeLookupRepo) Complete(ctx context.Context, id string, data *domain.BinData) error {
	if f.completeFn == nil {
		return nil
	}
	return f.completeFn(ctx, id, data)
}

func (f *fakeLookupRepo) ScheduleRetry(ctx context.Context, id string, errorMessage string, nextRetryAt time.Time) error {
	if f.scheduleRetryFn == nil {
		return nil
	}
	return f.scheduleRetryFn(ctx, id, errorMessage, nextRetryAt)
}

func (f *fakeLookupRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	if f.markFailedFn == nil {
		return nil
	}
	return f.markFailedFn(ctx, id, errorMessage)
}

func (f *fakeLookupRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Lookup, error) {
	if f.getDueForRetryFn == nil {
		return nil, nil
	}
	return f.getDueForRetryFn(ctx, now, limit)
}

func (f *fakeLookupRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearNextRetryAtFn == nil {
		return nil
	}
	return f.clearNextRetryAtFn(ctx, id)
}

func (f *fakeLookupRepo) GetStatsByImport(ctx context.Context, importID string) (repository.LookupStats, error) {
	if f.getStatsByImportFn == nil {
		return repository.LookupStats{}, nil
	}
	return f.getStatsByImportFn(ctx, importID)
}

func (f *fakeLookupRepo) RecentFailures(ctx context.Context, importID string, limit int) ([]domain.Lookup, error) {
	if f.recentFailuresFn == nil {
		return nil, nil
	}
	return f.recentFailuresFn(ctx, importID, limit)
}

func (f *fakeLookupRepo) ListByImport(ctx context.Context, importID string, page, pageSize int) ([]domain.Lookup, int64, error) {
	if f.listByImportFn == nil {
		return nil, 0, nil
	}
	return f.listByImportFn(ctx, importID, page, pageSize)
}

func (f *fakeLookupRepo) FindStuckPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error) {
	if f.findStuckPendingFn == nil {
		return nil, nil
	}
	return f.findStuckPendingFn(ctx, cutoff, limit)
}

func (f *fakeLookupRepo) FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error) {
	if f.findStaleProcessingFn == nil {
		return nil, nil
	}
	return f.findStaleProcessingFn(ctx, cutoff, limit)
}

func (f *fakeLookupRepo) ResetToPending(ctx context.Context, id string) (bool, error) {
	if f.resetToPendingFn == nil {
		return false, nil
	}
	return f.resetToPendingFn(ctx, id)
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.LookupMessage) error
	published []queue.LookupMessage
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.LookupMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.consumeFn(ctx, queueName, handler)
}

func (f *fakeConsumer) Close() error { return nil }

type fakeBinAPI struct {
	lookupFn func(ctx context.Context, bin string) (*binapi.EnrichmentFields, error)
}

func (f *fakeBinAPI) Lookup(ctx context.Context, bin string) (*binapi.EnrichmentFields, error) {
	if f.lookupFn == nil {
		return &binapi.EnrichmentFields{}, nil
	}
	return f.lookupFn(ctx, bin)
}

type fakeProgress struct {
	recomputeFn func(ctx context.Context, importID string) error
	recomputed  []string
}

func (f *fakeProgress) Recompute(ctx context.Context, importID string) error {
	if f.recomputeFn != nil {
		if err := f.recomputeFn(ctx, importID); err != nil {
			return err
		}
	}
	f.recomputed = append(f.recomputed, importID)
	return nil
}
