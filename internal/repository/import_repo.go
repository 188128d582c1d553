package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"gorm.io/gorm"
)

type ImportListParams struct {
	Status   *domain.ImportStatus
	Search   string
	Page     int
	PageSize int
}

type ImportRepository interface {
	// CreateWithLookups persists the import, bulk-inserts its lookups and
	// marks the import processing, all in one transaction.
	CreateWithLookups(ctx context.Context, imp *domain.Import, lookups []*domain.Lookup) error
	GetByID(ctx context.Context, id string) (*domain.Import, error)
	List(ctx context.Context, params ImportListParams) ([]domain.Import, int64, error)
	UpdateProgress(ctx context.Context, id string, processed, failed int) error
	CompleteIfProcessing(ctx context.Context, id string, processed, failed int, completedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

type GormImportRepo struct {
	db *gorm.DB
}

func NewGormImportRepo(db *gorm.DB) *GormImportRepo {
	return &GormImportRepo{db: db}
}

func (r *GormImportRepo) CreateWithLookups(ctx context.Context, imp *domain.Import, lookups []*domain.Lookup) error {
	model := importModelFromDomain(imp)
	if model == nil {
		return domain.ErrValidation
	}

	lookupModels := make([]LookupModel, 0, len(lookups))
	for _, l := range lookups {
		if lm := lookupModelFromDomain(l); lm != nil {
			lookupModels = append(lookupModels, *lm)
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}

		if len(lookupModels) > 0 {
			if err := tx.CreateInBatches(&lookupModels, 500).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		model.Status = domain.ImportStatusProcessing
		model.StartedAt = &now
		return tx.Model(&ImportModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"status":     domain.ImportStatusProcessing,
				"started_at": now,
			}).Error
	})
	if err != nil {
		return err
	}

	*imp = *importModelToDomain(model)
	for i := range lookupModels {
		if i < len(lookups) && lookups[i] != nil {
			*lookups[i] = *lookupModelToDomain(&lookupModels[i])
		}
	}

	return nil
}

func (r *GormImportRepo) GetByID(ctx context.Context, id string) (*domain.Import, error) {
	var model ImportModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return importModelToDomain(&model), nil
}

func (r *GormImportRepo) List(ctx context.Context, params ImportListParams) ([]domain.Import, int64, error) {
	query := r.db.WithContext(ctx).Model(&ImportModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Search != "" {
		query = query.Where("filename ILIKE ?", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 15
	}
	pageSize = min(pageSize, 100)

	var models []ImportModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	imports := make([]domain.Import, 0, len(models))
	for i := range models {
		imports = append(imports, *importModelToDomain(&models[i]))
	}

	return imports, total, nil
}

func (r *GormImportRepo) UpdateProgress(ctx context.Context, id string, processed, failed int) error {
	result := r.db.WithContext(ctx).
		Model(&ImportModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_bins": processed,
			"failed_bins":    failed,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CompleteIfProcessing flips a processing import to completed. Returns false
// without error when the import already reached a terminal state, which keeps
// concurrent aggregator calls commutative.
func (r *GormImportRepo) CompleteIfProcessing(ctx context.Context, id string, processed, failed int, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ImportModel{}).
		Where("id = ? AND status = ?", id, domain.ImportStatusProcessing).
		Updates(map[string]any{
			"processed_bins": processed,
			"failed_bins":    failed,
			"status":         domain.ImportStatusCompleted,
			"completed_at":   completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormImportRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&ImportModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
