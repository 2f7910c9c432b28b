package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/dto"
	"github.com/noah-isme/kindrid-api/internal/models"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/export"
)

type photoReader interface {
	List(ctx context.Context) []models.Photo
	Get(ctx context.Context, id string) (*models.Photo, error)
	ReferencesMedia(key string) bool
}

type mediaSweeper interface {
	CleanupOlderThan(ttl time.Duration, keep func(key string) bool) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	OrphanTTL time.Duration
}

// ExportService renders consent reports and sweeps media no photo references.
type ExportService struct {
	photos photoReader
	files  mediaSweeper
	logger *zap.Logger
	cfg    ExportConfig
	now    func() time.Time
}

var consentColumns = []export.Column{
	{Key: "photo_id", Label: "Photo", Weight: 2.5},
	{Key: "title", Label: "Title", Weight: 2},
	{Key: "status", Label: "Status", Weight: 1.3},
	{Key: "subject", Label: "Child", Weight: 1.5},
	{Key: "decision", Label: "Decision"},
	{Key: "detected", Label: "Detected", Weight: 0.8},
	{Key: "confidence", Label: "Confidence", Weight: 0.9},
}

func pendingDecision(row map[string]string) bool { return row["decision"] == "pending" }

// NewExportService constructs an ExportService.
func NewExportService(photos photoReader, files mediaSweeper, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OrphanTTL <= 0 {
		cfg.OrphanTTL = time.Hour
	}
	return &ExportService{photos: photos, files: files, logger: logger, cfg: cfg, now: time.Now}
}

// ConsentReport renders one row per child of the photo with its current decision.
func (s *ExportService) ConsentReport(ctx context.Context, id, format string) (*dto.Report, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	photo, err := s.photos.Get(ctx, id)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}

	dataset := export.Dataset{
		Title:     "Consent report: " + displayTitle(*photo),
		Notes:     []string{"Status: " + string(photo.Status), "Generated: " + s.now().UTC().Format(time.RFC3339)},
		Columns:   consentColumns,
		Rows:      consentRows(*photo),
		Highlight: pendingDecision,
	}
	return s.render(renderer, dataset, "consent_"+sanitizeFilename(photo.ID))
}

// ConsentSummary renders the decision rows of every photo, optionally filtered by status.
func (s *ExportService) ConsentSummary(ctx context.Context, status models.PhotoStatus, format string) (*dto.Report, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rows := make([]map[string]string, 0)
	for _, photo := range s.photos.List(ctx) {
		if status != "" && photo.Status != status {
			continue
		}
		rows = append(rows, consentRows(photo)...)
	}
	dataset := export.Dataset{
		Title:     "Consent summary",
		Columns:   consentColumns,
		Rows:      rows,
		Highlight: pendingDecision,
	}
	if status != "" {
		dataset.Notes = []string{"Status filter: " + string(status)}
	}
	return s.render(renderer, dataset, "consent_summary")
}

// SweepOrphanMedia deletes stored media older than ttl that no photo references.
// Zero ttl uses the configured default.
func (s *ExportService) SweepOrphanMedia(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.OrphanTTL
	}
	removed, err := s.files.CleanupOlderThan(ttl, func(key string) bool {
		return !models.IsMediaKey(key) || s.photos.ReferencesMedia(key)
	})
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("orphan media swept", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func (s *ExportService) render(renderer export.Renderer, dataset export.Dataset, base string) (*dto.Report, error) {
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render report")
	}
	timestamp := s.now().UTC().Format("20060102_150405")
	return &dto.Report{
		Filename:    fmt.Sprintf("%s_%s.%s", base, timestamp, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func consentRows(photo models.Photo) []map[string]string {
	rows := make([]map[string]string, 0, len(photo.Children))
	for _, child := range models.SortedUnique(photo.Children) {
		decision := "pending"
		if contains(photo.ConsentGiven, child) {
			decision = "granted"
		}
		row := map[string]string{
			"photo_id": photo.ID,
			"title":    photo.Title,
			"status":   string(photo.Status),
			"subject":  child,
			"decision": decision,
			"detected": "no",
		}
		if photo.AIFeatures != nil {
			for _, person := range photo.AIFeatures.PersonDetection {
				if person.Name == child {
					row["detected"] = "yes"
					row["confidence"] = fmt.Sprintf("%.2f", person.Confidence)
					break
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func displayTitle(photo models.Photo) string {
	if strings.TrimSpace(photo.Title) != "" {
		return photo.Title
	}
	return photo.ID
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
