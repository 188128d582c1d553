package binapi

import "encoding/json"

// EnrichmentFields is the canonical shape of a normalized lookup result.
// Absent upstream fields stay nil; RawResponse keeps the payload for audit.
type EnrichmentFields struct {
	BankName    *string         `json:"bank_name"`
	CardType    *string         `json:"card_type"`
	CardBrand   *string         `json:"card_brand"`
	CountryCode *string         `json:"country_code"`
	CountryName *string         `json:"country_name"`
	Website     *string         `json:"website"`
	Phone       *string         `json:"phone"`
	RawResponse json.RawMessage `json:"raw_response"`
}

// upstreamResponse mirrors the heterogeneous field names the BIN database
// returns; brand and scheme are alternatives for the same concept.
type upstreamResponse struct {
	Type   string `json:"type"`
	Brand  string `json:"brand"`
	Scheme string `json:"scheme"`
	Bank   struct {
		Name  string `json:"name"`
		URL   string `json:"url"`
		Phone string `json:"phone"`
	} `json:"bank"`
	Country struct {
		Alpha2 string `json:"alpha2"`
		Name   string `json:"name"`
	} `json:"country"`
}

func normalizeResponse(raw []byte, parsed upstreamResponse) *EnrichmentFields {
	brand := parsed.Brand
	if brand == "" {
		brand = parsed.Scheme
	}

	return &EnrichmentFields{
		BankName:    optionalString(parsed.Bank.Name),
		CardType:    optionalString(parsed.Type),
		CardBrand:   optionalString(brand),
		CountryCode: optionalString(parsed.Country.Alpha2),
		CountryName: optionalString(parsed.Country.Name),
		Website:     optionalString(parsed.Bank.URL),
		Phone:       optionalString(parsed.Bank.Phone),
		RawResponse: json.RawMessage(raw),
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
