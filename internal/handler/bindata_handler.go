package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
)

// BinDataLister exposes the enriched records for querying.
type BinDataLister interface {
	List(ctx context.Context, params repository.BinDataListParams) ([]domain.BinData, int64, error)
}

type BinDataHandler struct {
	records BinDataLister
}

func NewBinDataHandler(records BinDataLister) (*BinDataHandler, error) {
	if records == nil {
		return nil, fmt.Errorf("bin data lister is required")
	}
	return &BinDataHandler{records: records}, nil
}

func RegisterBinDataRoutes(router fiber.Router, records BinDataLister) error {
	h, err := NewBinDataHandler(records)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/bin-data", h.ListBinData)

	return nil
}

type binDataResponse struct {
	ID          string    `json:"id"`
	BinLookupID string    `json:"binLookupId"`
	BinNumber   string    `json:"binNumber"`
	BankName    *string   `json:"bankName"`
	CardType    *string   `json:"cardType"`
	CardBrand   *string   `json:"cardBrand"`
	CountryCode *string   `json:"countryCode"`
	CountryName *string   `json:"countryName"`
	Website     *string   `json:"website"`
	Phone       *string   `json:"phone"`
	CreatedAt   time.Time `json:"createdAt"`
}

type listBinDataResponse struct {
	Data []binDataResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

func (h *BinDataHandler) ListBinData(c *fiber.Ctx) error {
	params, err := parseBinDataListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.records.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]binDataResponse, 0, len(records))
	for i := range records {
		data = append(data, toBinDataResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listBinDataResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseBinDataListParams(c *fiber.Ctx) (repository.BinDataListParams, error) {
	params := repository.BinDataListParams{
		Page:        c.QueryInt("page", defaultPage),
		PageSize:    c.QueryInt("pageSize", defaultPageSize),
		BinPrefix:   strings.TrimSpace(c.Query("bin")),
		BankName:    strings.TrimSpace(c.Query("bank")),
		CardBrand:   strings.TrimSpace(c.Query("brand")),
		CardType:    strings.TrimSpace(c.Query("type")),
		CountryCode: strings.ToUpper(strings.TrimSpace(c.Query("country"))),
		ImportID:    strings.TrimSpace(c.Query("importId")),
	}

	if params.Page < 1 {
		return repository.BinDataListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.BinDataListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if params.BinPrefix != "" {
		for _, r := range params.BinPrefix {
			if r < '0' || r > '9' {
				return repository.BinDataListParams{}, fmt.Errorf("%w: bin filter must be numeric", domain.ErrValidation)
			}
		}
	}
	if params.CountryCode != "" && len(params.CountryCode) != 2 {
		return repository.BinDataListParams{}, fmt.Errorf("%w: country filter must be a two-letter code", domain.ErrValidation)
	}

	return params, nil
}

func toBinDataResponse(d *domain.BinData) binDataResponse {
	if d == nil {
		return binDataResponse{}
	}

	return binDataResponse{
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
		CreatedAt:   d.CreatedAt,
	}
}
