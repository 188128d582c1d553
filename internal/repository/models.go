package repository

import (
	"time"

	"github.com/kursadbilgin/binlookup-engine/internal/domain"
)

// ImportModel is the persistence model for the bin_imports table.
type ImportModel struct {
	ID            string              `gorm:"type:uuid;primaryKey"`
	Filename      string              `gorm:"type:varchar(255);not null"`
	FileSize      int64               `gorm:"not null;default:0"`
	TotalBins     int                 `gorm:"not null;default:0"`
	ProcessedBins int                 `gorm:"not null;default:0"`
	FailedBins    int                 `gorm:"not null;default:0"`
	Status        domain.ImportStatus `gorm:"type:varchar(20);not null"`
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ImportModel) TableName() string {
	return "bin_imports"
}

// LookupModel is the persistence model for the bin_lookups table.
type LookupModel struct {
	ID              string              `gorm:"type:uuid;primaryKey"`
	BinImportID     string              `gorm:"type:uuid;not null"`
	BinNumber       string              `gorm:"type:varchar(8);not null"`
	Status          domain.LookupStatus `gorm:"type:varchar(20);not null"`
	Attempts        int                 `gorm:"not null;default:0"`
	NextRetryAt     *time.Time
	LastAttemptedAt *time.Time
	ErrorMessage    *string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (LookupModel) TableName() string {
	return "bin_lookups"
}

// BinDataModel is the persistence model for the bin_data table.
type BinDataModel struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	BinLookupID string  `gorm:"type:uuid;not null;uniqueIndex"`
	BinNumber   string  `gorm:"type:varchar(8);not null"`
	BankName    *string `gorm:"type:varchar(255)"`
	CardType    *string `gorm:"type:varchar(50)"`
	CardBrand   *string `gorm:"type:varchar(50)"`
	CountryCode *string `gorm:"type:varchar(2)"`
	CountryName *string `gorm:"type:varchar(100)"`
	Website     *string `gorm:"type:varchar(255)"`
	Phone       *string `gorm:"type:varchar(50)"`
	APIResponse []byte  `gorm:"type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (BinDataModel) TableName() string {
	return "bin_data"
}

func importModelFromDomain(i *domain.Import) *ImportModel {
	if i == nil {
		return nil
	}

	return &ImportModel{
		ID:            i.ID,
		Filename:      i.Filename,
		FileSize:      i.FileSize,
		TotalBins:     i.TotalBins,
		ProcessedBins: i.ProcessedBins,
		FailedBins:    i.FailedBins,
		Status:        i.Status,
		StartedAt:     i.StartedAt,
		CompletedAt:   i.CompletedAt,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func importModelToDomain(m *ImportModel) *domain.Import {
	if m == nil {
		return nil
	}

	return &domain.Import{
		ID:            m.ID,
		Filename:      m.Filename,
		FileSize:      m.FileSize,
		TotalBins:     m.TotalBins,
		ProcessedBins: m.ProcessedBins,
		FailedBins:    m.FailedBins,
		Status:        m.Status,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func lookupModelFromDomain(l *domain.Lookup) *LookupModel {
	if l == nil {
		return nil
	}

	return &LookupModel{
		ID:              l.ID,
		BinImportID:     l.BinImportID,
		BinNumber:       l.BinNumber,
		Status:          l.Status,
		Attempts:        l.Attempts,
		NextRetryAt:     l.NextRetryAt,
		LastAttemptedAt: l.LastAttemptedAt,
		ErrorMessage:    l.ErrorMessage,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func lookupModelToDomain(m *LookupModel) *domain.Lookup {
	if m == nil {
		return nil
	}

	return &domain.Lookup{
		ID:              m.ID,
		BinImportID:     m.BinImportID,
		BinNumber:       m.BinNumber,
		Status:          m.Status,
		Attempts:        m.Attempts,
		NextRetryAt:     m.NextRetryAt,
		LastAttemptedAt: m.LastAttemptedAt,
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func binDataModelFromDomain(d *domain.BinData) *BinDataModel {
	if d == nil {
		return nil
	}

	return &BinDataModel{
		ID:          d.ID,
		BinLookupID: d.BinLookupID,
		BinNumber:   d.BinNumber,
		BankName:    d.BankName,
		CardType:    d.CardType,
		CardBrand:   d.CardBrand,
		CountryCode: d.CountryCode,
		CountryName: d.CountryName,
		Website:     d.Website,
		Phone:       d.Phone,
		APIResponse: d.APIResponse,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func binDataModelToDomain(m *BinDataModel) *domain.BinData {
	if m == nil {
		return nil
	}

	return &domain.BinData{
		ID:          m.ID,
		BinLookupID: m.BinLookupID,
		BinNumber:   m.BinNumber,
		BankName:    m.BankName,
		CardType:    m.CardType,
		CardBrand:   m.CardBrand,
		CountryCode: m.CountryCode,
		CountryName: m.CountryName,
		Website:     m.Website,
		Phone:       m.Phone,
		APIResponse: m.APIResponse,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
