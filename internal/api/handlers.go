package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maltedev/ksa-price-scraper/internal/compare"
	"github.com/maltedev/ksa-price-scraper/internal/jobs"
	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/report"
	"github.com/maltedev/ksa-price-scraper/internal/stores"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Handlers struct {
	registry *stores.Registry
	jobs     *jobs.Manager
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandlers(registry *stores.Registry, jobs *jobs.Manager, logger *slog.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		jobs:     jobs,
		validate: validator.New(),
		logger:   logger.With("component", "api"),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type StoreInfo struct {
	ID   models.StoreID `json:"id"`
	Name string         `json:"name"`
}

func (h *Handlers) ListStores(w http.ResponseWriter, r *http.Request) {
	adapters := h.registry.List()
	out := make([]StoreInfo, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, StoreInfo{ID: a.ID(), Name: a.DisplayName()})
	}
	h.respondJSON(w, http.StatusOK, out)
}

type CityInfo struct {
	ID   models.City `json:"id"`
	Name string      `json:"name"`
}

func (h *Handlers) ListCities(w http.ResponseWriter, r *http.Request) {
	cities := models.AllCities()
	out := make([]CityInfo, 0, len(cities))
	for _, c := range cities {
		out = append(out, CityInfo{ID: c, Name: c.DisplayName()})
	}
	h.respondJSON(w, http.StatusOK, out)
}

// CreateComparisonRequest starts a comparison. Omitting stores compares
// every known store.
type CreateComparisonRequest struct {
	Products    []string `json:"products" validate:"required,min=1,max=200,dive,required,max=200"`
	Stores      []string `json:"stores" validate:"omitempty,max=20,dive,required"`
	City        string   `json:"city" validate:"omitempty,max=50"`
	Concurrency int      `json:"concurrency" validate:"gte=0,lte=16"`
}

type CreateComparisonResponse struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

func (h *Handlers) CreateComparison(w http.ResponseWriter, r *http.Request) {
	var req CreateComparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	batch := compare.Batch{
		Products:    req.Products,
		City:        models.City(req.City),
		Concurrency: req.Concurrency,
	}
	if req.Stores != nil {
		batch.Stores = make([]models.StoreID, 0, len(req.Stores))
		for _, s := range req.Stores {
			batch.Stores = append(batch.Stores, models.StoreID(s))
		}
	}

	job, err := h.jobs.CreateJob(batch)
	if err != nil {
		var verr *compare.ValidationError
		switch {
		case errors.As(err, &verr):
			h.respondError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, jobs.ErrTooManyJobs):
			h.respondError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, jobs.ErrShuttingDown):
			h.respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("failed to create job", "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to create job")
		}
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateComparisonResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

func (h *Handlers) ListComparisons(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

// CellView is one store price in a result row. Price is nil when the store
// had no usable price.
type CellView struct {
	Price   *string              `json:"price"`
	Link    string               `json:"link,omitempty"`
	Failure models.FailureReason `json:"failure,omitempty"`
}

type RowView struct {
	Product  string                      `json:"product"`
	Prices   map[models.StoreID]CellView `json:"prices"`
	Cheapest *models.BestOffer           `json:"cheapest"`
}

type ComparisonResponse struct {
	jobs.Job
	Rows   []RowView        `json:"rows,omitempty"`
	Groups *report.Grouping `json:"groups,omitempty"`
}

func (h *Handlers) GetComparison(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	matrix, job, err := h.jobs.Matrix(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrJobNotDone):
		h.respondJSON(w, http.StatusOK, ComparisonResponse{Job: job})
		return
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	table := report.BuildTable(matrix)
	groups := report.GroupByCheapestStore(table)
	resp := ComparisonResponse{Job: job, Groups: &groups}
	for _, row := range table.Rows {
		view := RowView{
			Product:  row.Product,
			Prices:   make(map[models.StoreID]CellView, len(row.Cells)),
			Cheapest: row.Best,
		}
		for _, c := range row.Cells {
			cell := CellView{Link: c.Result.Link, Failure: c.Result.Failure}
			if c.Result.Available() {
				price := c.PriceText()
				cell.Price = &price
			}
			view.Prices[c.Store] = cell
		}
		resp.Rows = append(resp.Rows, view)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CancelComparison(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.CancelJob(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrJobFinished):
		h.respondError(w, http.StatusConflict, "job already finished")
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to cancel job")
	default:
		h.respondJSON(w, http.StatusAccepted, job)
	}
}

func (h *Handlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", csvContentType, report.WriteCSV)
}

func (h *Handlers) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", xlsxContentType, report.WriteXLSX)
}

func (h *Handlers) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(w io.Writer, t report.Table) error) {
	jobID := chi.URLParam(r, "jobID")

	matrix, _, err := h.jobs.Matrix(jobID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, jobs.ErrJobNotDone):
		h.respondError(w, http.StatusConflict, "job has not finished")
		return
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, report.BuildTable(matrix)); err != nil {
		h.logger.Error("failed to render export", "job", jobID, "format", ext, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to render export")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="prices-%s.%s"`, jobID, ext))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write export", "job", jobID, "error", err)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed on %s", fe.Namespace(), fe.Tag())
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
