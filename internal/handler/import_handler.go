package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/binlookup-engine/internal/domain"
	"github.com/kursadbilgin/binlookup-engine/internal/repository"
	"github.com/kursadbilgin/binlookup-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 15
	maxPageSize     = 100
)

type ImportService interface {
	CreateFromUpload(ctx context.Context, filename string, size int64, file io.Reader) (*domain.Import, error)
	GetByID(ctx context.Context, id string) (*domain.Import, error)
	List(ctx context.Context, params repository.ImportListParams) ([]domain.Import, int64, error)
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context, id string) (*service.ImportStatistics, error)
}

type ImportHandler struct {
	service ImportService
}

func NewImportHandler(service ImportService) (*ImportHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("import service is required")
	}
	return &ImportHandler{service: service}, nil
}

func RegisterImportRoutes(router fiber.Router, service ImportService) error {
	h, err := NewImportHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/bin-imports", h.CreateImport)
	v1.Get("/bin-imports", h.ListImports)
	v1.Get("/bin-imports/:id", h.GetImport)
	v1.Delete("/bin-imports/:id", h.DeleteImport)

	return nil
}

type importResponse struct {
	ID                 string     `json:"id"`
	Filename           string     `json:"filename"`
	FileSize           int64      `json:"fileSize"`
	TotalBins          int        `json:"totalBins"`
	ProcessedBins      int        `json:"processedBins"`
	FailedBins         int        `json:"failedBins"`
	Status             string     `json:"status"`
	ProgressPercentage int        `json:"progressPercentage"`
	SuccessRate        float64    `json:"successRate"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type importDetailResponse struct {
	importResponse
	PendingBins  int                     `json:"pendingBins"`
	RecentErrors []lookupFailureResponse `json:"recentErrors"`
}

type lookupFailureResponse struct {
	BinNumber    string    `json:"binNumber"`
	ErrorMessage string    `json:"errorMessage"`
	Attempts     int       `json:"attempts"`
	FailedAt     time.Time `json:"failedAt"`
}

type listImportsResponse struct {
	Data []importResponse `json:"data"`
	Meta listMeta         `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *ImportHandler) CreateImport(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "uploaded file could not be opened")
	}
	defer file.Close() //nolint:errcheck // read-only upload handle

	imp, err := h.service.CreateFromUpload(c.Context(), fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		var validation *domain.ValidationErrors
		if errors.As(err, &validation) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "the uploaded file is invalid",
				"errors":  validation.Errors,
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toImportResponse(imp))
}

func (h *ImportHandler) GetImport(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	stats, err := h.service.Statistics(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	recent := make([]lookupFailureResponse, 0, len(stats.RecentErrors))
	for _, failure := range stats.RecentErrors {
		recent = append(recent, lookupFailureResponse{
			BinNumber:    failure.BinNumber,
			ErrorMessage: failure.ErrorMessage,
			Attempts:     failure.Attempts,
			FailedAt:     failure.FailedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(importDetailResponse{
		importResponse: toImportResponse(stats.Import),
		PendingBins:    stats.Pending,
		RecentErrors:   recent,
	})
}

func (h *ImportHandler) ListImports(c *fiber.Ctx) error {
	params, err := parseImportListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	imports, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]importResponse, 0, len(imports))
	for i := range imports {
		data = append(data, toImportResponse(&imports[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listImportsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *ImportHandler) DeleteImport(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseImportListParams(c *fiber.Ctx) (repository.ImportListParams, error) {
	params := repository.ImportListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
		Search:   strings.TrimSpace(c.Query("search")),
	}

	if params.Page < 1 {
		return repository.ImportListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ImportListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseImportStatusFromString(rawStatus)
		if err != nil {
			return repository.ImportListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toImportResponse(imp *domain.Import) importResponse {
	if imp == nil {
		return importResponse{}
	}

	return importResponse{
		ID:                 imp.ID,
		Filename:           imp.Filename,
		FileSize:           imp.FileSize,
		TotalBins:          imp.TotalBins,
		ProcessedBins:      imp.ProcessedBins,
		FailedBins:         imp.FailedBins,
		Status:             imp.Status.String(),
		ProgressPercentage: imp.ProgressPercentage(),
		SuccessRate:        imp.SuccessRate(),
		StartedAt:          imp.StartedAt,
		CompletedAt:        imp.CompletedAt,
		CreatedAt:          imp.CreatedAt,
		UpdatedAt:          imp.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
