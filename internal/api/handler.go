// Package api wires the HTTP surface over the message processor and the
// domain repositories. It sits above both so the processor's store contracts
// and the domain packages stay free of transport concerns.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/labfeed/internal/domain/documents"
	"github.com/ehr/labfeed/internal/domain/results"
	"github.com/ehr/labfeed/internal/hl7"
)

// Handler exposes the results intake endpoint and the read API over flushed
// reports, results, and filed documents.
type Handler struct {
	proc *hl7.Processor
	repo results.Repository
	docs *documents.Service
}

func NewHandler(proc *hl7.Processor, repo results.Repository, docs *documents.Service) *Handler {
	return &Handler{proc: proc, repo: repo, docs: docs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/lab/results", h.ReceiveResults)
	api.GET("/lab/orders/:id/reports", h.ListReports)
	api.GET("/lab/reports/:id/results", h.ListResults)
	api.GET("/lab/documents/:id", h.DownloadDocument)
	api.GET("/lab/patients/:id/documents", h.ListPatientDocuments)
}

// ReceiveResults accepts one raw HL7 ORU message in the request body and
// applies it. A failed message may be partially applied; the response names
// the offending condition so the sender can correct and resubmit.
func (h *Handler) ReceiveResults(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read request body")
	}
	if len(raw) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty message")
	}

	if err := h.proc.Process(c.Request().Context(), string(raw)); err != nil {
		return c.JSON(statusForProcessError(err), map[string]string{
			"status": "rejected",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "processed"})
}

// statusForProcessError maps processing failures onto HTTP statuses. Sender
// mistakes are 4xx; anything pointing at this side's configuration or storage
// is 5xx.
func statusForProcessError(err error) int {
	switch {
	case errors.Is(err, hl7.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, hl7.ErrEncounterMismatch):
		return http.StatusConflict
	case errors.Is(err, hl7.ErrMalformedHeader),
		errors.Is(err, hl7.ErrUnsupportedMessageType),
		errors.Is(err, hl7.ErrUnknownSegment),
		errors.Is(err, hl7.ErrInvalidEncoding):
		return http.StatusBadRequest
	case errors.Is(err, hl7.ErrCategoryNotConfigured),
		errors.Is(err, hl7.ErrDocumentStore):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func (h *Handler) ListReports(c echo.Context) error {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	reports, err := h.repo.ReportsByOrder(c.Request().Context(), orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reports)
}

func (h *Handler) ListResults(c echo.Context) error {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	rows, err := h.repo.ResultsByReport(c.Request().Context(), reportID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	doc, data, err := h.docs.GetDocument(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+doc.Filename+`"`)
	return c.Blob(http.StatusOK, doc.MimeType, data)
}

// ListPatientDocuments lists the documents filed for a patient from incoming
// results, newest first per the repository ordering.
func (h *Handler) ListPatientDocuments(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	docs, err := h.docs.ListPatientDocuments(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, docs)
}
