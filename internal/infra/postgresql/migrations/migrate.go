package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createBinImportsTable(),
		createBinLookupsTable(),
		createBinDataTable(),
	})

	return m.Migrate()
}

func createBinImportsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_bin_imports",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ImportModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_bin_imports_status_created ON bin_imports (status, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ImportModel{})
		},
	}
}

func createBinLookupsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_bin_lookups",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.LookupModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE bin_lookups ADD CONSTRAINT fk_bin_lookups_import
					FOREIGN KEY (bin_import_id) REFERENCES bin_imports (id) ON DELETE CASCADE`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_bin_lookups_import_bin ON bin_lookups (bin_import_id, bin_number)`,
				`CREATE INDEX IF NOT EXISTS idx_bin_lookups_import_status ON bin_lookups (bin_import_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_bin_lookups_retry ON bin_lookups (next_retry_at) WHERE status = 'pending' AND next_retry_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_bin_lookups_stale ON bin_lookups (last_attempted_at) WHERE status = 'processing'`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.LookupModel{})
		},
	}
}

func createBinDataTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_bin_data",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BinDataModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE bin_data ADD CONSTRAINT fk_bin_data_lookup
					FOREIGN KEY (bin_lookup_id) REFERENCES bin_lookups (id) ON DELETE CASCADE`,
				`CREATE INDEX IF NOT EXISTS idx_bin_data_bin_number ON bin_data (bin_number)`,
				`CREATE INDEX IF NOT EXISTS idx_bin_data_country_code ON bin_data (country_code) WHERE country_code IS NOT NULL`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BinDataModel{})
		},
	}
}
