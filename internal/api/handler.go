package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"consultdoc/internal/bundle"
	"consultdoc/internal/document"
	"consultdoc/internal/generation"
	"consultdoc/internal/intake"
	"consultdoc/internal/pipeline"
	"consultdoc/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Failure is the error envelope. Details are omitted in production.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type DocumentResponse struct {
	Success     bool               `json:"success"`
	Document    *document.Document `json:"document"`
	Diagnostics *pipeline.Report   `json:"diagnostics,omitempty"`
}

type Handler struct {
	svc        *pipeline.Service
	production bool
	logger     zerolog.Logger
}

func NewHandler(svc *pipeline.Service, production bool, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, production: production, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	v1 := e.Group("/v1")
	v1.POST("/documents", h.CreateDocument)
	v1.GET("/documents", h.ListDocuments)
	v1.GET("/documents/:id", h.GetDocument)
}

// CreateDocument runs the pipeline on the posted bundle. ?simplified=true keeps
// only the plain-text prescription summary; ?strict=true fails instead of
// falling back when generation is exhausted.
func (h *Handler) CreateDocument(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.fail(c, http.StatusBadRequest, "could not read request body", err.Error())
	}
	b, err := bundle.Decode(body)
	if err != nil {
		return h.fail(c, http.StatusBadRequest, "request body is not a JSON object", err.Error())
	}

	opts := pipeline.Options{
		Simplified: queryBool(c, "simplified") || bodyBool(b, "simplified"),
	}
	opts.RequestID, _ = c.Get("request_id").(string)
	if queryBool(c, "strict") {
		opts.Policy = generation.PolicyFail
	}

	res, err := h.svc.Generate(c.Request().Context(), b, opts)
	if err != nil {
		status, msg := classify(err)
		return h.fail(c, status, msg, err.Error())
	}

	resp := DocumentResponse{Success: true, Document: res.Document}
	if !h.production {
		resp.Diagnostics = res.Report
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetDocument(c echo.Context) error {
	archive := h.svc.Archive()
	if archive == nil {
		return h.fail(c, http.StatusNotFound, "document archive is disabled", nil)
	}
	rec, err := archive.GetDocument(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return h.fail(c, http.StatusNotFound, "document not found", nil)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", c.Param("id")).Msg("Failed to read archived document")
		return h.fail(c, http.StatusInternalServerError, "could not read document archive", err.Error())
	}

	out := map[string]any{
		"success":  true,
		"document": json.RawMessage(rec.Document),
	}
	if !h.production && len(rec.Report) > 0 {
		out["diagnostics"] = json.RawMessage(rec.Report)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	archive := h.svc.Archive()
	if archive == nil {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "documents": []storage.Record{}})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := archive.ListDocuments(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list archived documents")
		return h.fail(c, http.StatusInternalServerError, "could not read document archive", err.Error())
	}
	if recs == nil {
		recs = []storage.Record{}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "documents": recs})
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"generator": h.svc.Generator(),
		"policy":    h.svc.Policy(),
		"tables":    h.svc.Tables().Counts(),
		"archive":   h.svc.Archive() != nil,
	})
}

func (h *Handler) fail(c echo.Context, status int, msg string, details any) error {
	f := Failure{Error: msg}
	if !h.production {
		f.Details = details
	}
	return c.JSON(status, f)
}

// classify maps pipeline errors to HTTP status codes.
func classify(err error) (int, string) {
	var invalid *intake.InputValidationError
	var exhausted *generation.ExhaustedError
	var timeout *generation.TimeoutError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &exhausted):
		return http.StatusBadGateway, "document generation failed after retries"
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "document generation timed out"
	}
	return http.StatusInternalServerError, "internal server error"
}

func queryBool(c echo.Context, name string) bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && v
}

func bodyBool(b bundle.Bundle, key string) bool {
	v, _ := b[key].(bool)
	return v
}
