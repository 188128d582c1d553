package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"gorm.io/gorm"
)

// BinDataListParams filters the enriched record listing. Empty fields are
// ignored.
type BinDataListParams struct {
	BinPrefix   string
	BankName    string
	CardBrand   string
	CardType    string
	CountryCode string
	ImportID    string
	Page        int
	PageSize    int
}

type BinDataRepository interface {
	GetByLookupID(ctx context.Context, lookupID string) (*domain.BinData, error)
	List(ctx context.Context, params BinDataListParams) ([]domain.BinData, int64, error)
}

type GormBinDataRepo struct {
	db *gorm.DB
}

func NewGormBinDataRepo(db *gorm.DB) *GormBinDataRepo {
	return &GormBinDataRepo{db: db}
}

func (r *GormBinDataRepo) GetByLookupID(ctx context.Context, lookupID string) (*domain.BinData, error) {
	var model BinDataModel
	err := r.db.WithContext(ctx).First(&model, "bin_lookup_id = ?", lookupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return binDataModelToDomain(&model), nil
}

func (r *GormBinDataRepo) List(ctx context.Context, params BinDataListParams) ([]domain.BinData, int64, error) {
	query := r.db.WithContext(ctx).Model(&BinDataModel{})

	if params.BinPrefix != "" {
		query = query.Where("bin_data.bin_number LIKE ?", params.BinPrefix+"%")
	}
	if params.BankName != "" {
		query = query.Where("bank_name ILIKE ?", "%"+params.BankName+"%")
	}
	if params.CardBrand != "" {
		query = query.Where("card_brand ILIKE ?", params.CardBrand)
	}
	if params.CardType != "" {
		query = query.Where("card_type ILIKE ?", params.CardType)
	}
	if params.CountryCode != "" {
		query = query.Where("country_code = ?", params.CountryCode)
	}
	if params.ImportID != "" {
		query = query.
			Joins("JOIN bin_lookups ON bin_lookups.id = bin_data.bin_lookup_id").
			Where("bin_lookups.bin_import_id = ?", params.ImportID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	pageSize = min(pageSize, 100)

	var models []BinDataModel
	err := query.
		Order("bin_data.created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.BinData, 0, len(models))
	for i := range models {
		records = append(records, *binDataModelToDomain(&models[i]))
	}

	return records, total, nil
}
