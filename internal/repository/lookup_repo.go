package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LookupStats aggregates lookup statuses for one import.
type LookupStats struct {
	Total     int `gorm:"column:total"`
	Completed int `gorm:"column:completed"`
	Failed    int `gorm:"column:failed"`
}

// Pending returns the number of lookups not yet resolved.
func (s LookupStats) Pending() int {
	pending := s.Total - s.Completed - s.Failed
	if pending < 0 {
		return 0
	}
	return pending
}

type LookupRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Lookup, error)
	// ClaimForProcessing transitions a lookup to processing, increments its
	// attempt counter and stamps the attempt time, returning the claimed row.
	ClaimForProcessing(ctx context.Context, id string, now time.Time) (*domain.Lookup, error)
	// Complete upserts the enrichment result and marks the lookup completed
	// in one transaction.
	Complete(ctx context.Context, id string, data *domain.BinData) error
	ScheduleRetry(ctx context.Context, id string, errorMessage string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Lookup, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	GetStatsByImport(ctx context.Context, importID string) (LookupStats, error)
	RecentFailures(ctx context.Context, importID string, limit int) ([]domain.Lookup, error)
	ListByImport(ctx context.Context, importID string, page, pageSize int) ([]domain.Lookup, int64, error)
	// FindStuckPending returns pending lookups with no retry scheduled whose
	// last update is older than the cutoff (lost dispatch).
	FindStuckPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error)
	// FindStaleProcessing returns processing lookups whose attempt started
	// before the cutoff (interrupted worker).
	FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error)
	ResetToPending(ctx context.Context, id string) (bool, error)
}

type GormLookupRepo struct {
	db *gorm.DB
}

func NewGormLookupRepo(db *gorm.DB) *GormLookupRepo {
	return &GormLookupRepo{db: db}
}

func (r *GormLookupRepo) GetByID(ctx context.Context, id string) (*domain.Lookup, error) {
	var model LookupModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return lookupModelToDomain(&model), nil
}

func (r *GormLookupRepo) ClaimForProcessing(ctx context.Context, id string, now time.Time) (*domain.Lookup, error) {
	var model LookupModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if model.Status.IsTerminal() {
			return domain.ErrConflict
		}

		model.Status = domain.LookupStatusProcessing
		model.Attempts++
		model.LastAttemptedAt = &now
		model.NextRetryAt = nil

		return tx.Model(&LookupModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":            domain.LookupStatusProcessing,
				"attempts":          model.Attempts,
				"last_attempted_at": now,
				"next_retry_at":     nil,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return lookupModelToDomain(&model), nil
}

func (r *GormLookupRepo) Complete(ctx context.Context, id string, data *domain.BinData) error {
	model := binDataModelFromDomain(data)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if model != nil {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "bin_lookup_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"bin_number", "bank_name", "card_type", "card_brand",
					"country_code", "country_name", "website", "phone",
					"api_response", "updated_at",
				}),
			}).Create(model).Error
			if err != nil {
				return err
			}
		}

		result := tx.Model(&LookupModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":        domain.LookupStatusCompleted,
				"error_message": nil,
				"next_retry_at": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *GormLookupRepo) ScheduleRetry(ctx context.Context, id string, errorMessage string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&LookupModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.LookupStatusPending,
			"error_message": errorMessage,
			"next_retry_at": nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormLookupRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&LookupModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.LookupStatusFailed,
			"error_message": errorMessage,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormLookupRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Lookup, error) {
	var models []LookupModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.LookupStatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return lookupModelsToDomain(models), nil
}

func (r *GormLookupRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&LookupModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

func (r *GormLookupRepo) GetStatsByImport(ctx context.Context, importID string) (LookupStats, error) {
	var stats LookupStats
	err := r.db.WithContext(ctx).
		Model(&LookupModel{}).
		Select(`COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed`).
		Where("bin_import_id = ?", importID).
		Scan(&stats).Error
	if err != nil {
		return LookupStats{}, err
	}
	return stats, nil
}

func (r *GormLookupRepo) RecentFailures(ctx context.Context, importID string, limit int) ([]domain.Lookup, error) {
	var models []LookupModel
	err := r.db.WithContext(ctx).
		Where("bin_import_id = ? AND status = ? AND error_message IS NOT NULL", importID, domain.LookupStatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return lookupModelsToDomain(models), nil
}

func (r *GormLookupRepo) ListByImport(ctx context.Context, importID string, page, pageSize int) ([]domain.Lookup, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&LookupModel{}).
		Where("bin_import_id = ?", importID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 20
	}
	pageSize = min(pageSize, 100)

	var models []LookupModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return lookupModelsToDomain(models), total, nil
}

func (r *GormLookupRepo) FindStuckPending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error) {
	var models []LookupModel
	err := r.db.WithContext(ctx).
		Joins("JOIN bin_imports ON bin_imports.id = bin_lookups.bin_import_id").
		Where("bin_lookups.status = ? AND bin_lookups.next_retry_at IS NULL AND bin_lookups.updated_at <= ?",
			domain.LookupStatusPending, cutoff).
		Where("bin_imports.status = ?", domain.ImportStatusProcessing).
		Order("bin_lookups.updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return lookupModelsToDomain(models), nil
}

func (r *GormLookupRepo) FindStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.Lookup, error) {
	var models []LookupModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_attempted_at IS NOT NULL AND last_attempted_at <= ?",
			domain.LookupStatusProcessing, cutoff).
		Order("last_attempted_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return lookupModelsToDomain(models), nil
}

func (r *GormLookupRepo) ResetToPending(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&LookupModel{}).
		Where("id = ? AND status = ?", id, domain.LookupStatusProcessing).
		Update("status", domain.LookupStatusPending)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func lookupModelsToDomain(models []LookupModel) []domain.Lookup {
	lookups := make([]domain.Lookup, 0, len(models))
	for i := range models {
		lookups = append(lookups, *lookupModelToDomain(&models[i]))
	}
	return lookups
}
