package domain

import "time"

// BinData is the normalized third-party lookup result for one Lookup.
// It exists if and only if the owning Lookup completed successfully.
type BinData struct {
	ID          string
	BinLookupID string
	BinNumber   string
	BankName    *string
	CardType    *string
	CardBrand   *string
	CountryCode *string
	CountryName *string
	Website     *string
	Phone       *string
	APIResponse []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
