package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kindrid-api/internal/dto"
	"github.com/noah-isme/kindrid-api/internal/models"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/response"
)

type consentReporter interface {
	ConsentReport(ctx context.Context, id, format string) (*dto.Report, error)
	ConsentSummary(ctx context.Context, status models.PhotoStatus, format string) (*dto.Report, error)
}

// ReportHandler exposes consent report downloads.
type ReportHandler struct {
	reports consentReporter
}

// NewReportHandler constructs handler.
func NewReportHandler(reports consentReporter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// PhotoConsent godoc
// @Summary Consent report for one photo
// @Tags Reports
// @Produce text/csv,application/pdf
// @Param id path string true "Photo ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /photos/{id}/consent-report [get]
func (h *ReportHandler) PhotoConsent(c *gin.Context) {
	report, err := h.reports.ConsentReport(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendReport(c, report)
}

// ConsentSummary godoc
// @Summary Consent summary across photos
// @Tags Reports
// @Produce text/csv,application/pdf
// @Param status query string false "Filter by status"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /reports/consent [get]
func (h *ReportHandler) ConsentSummary(c *gin.Context) {
	status := models.PhotoStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
		return
	}
	report, err := h.reports.ConsentSummary(c.Request.Context(), status, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendReport(c, report)
}

func sendReport(c *gin.Context, report *dto.Report) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", report.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, report.ContentType, report.Data)
}
