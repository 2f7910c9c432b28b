package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/dto"
	"github.com/noah-isme/kindrid-api/internal/models"
	"github.com/noah-isme/kindrid-api/internal/repository"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/imaging"
	"github.com/noah-isme/kindrid-api/pkg/jobs"
)

const (
	analysisJobType = "photo.analysis"
	maxSubjectName  = 100
	sniffLen        = 512
)

var allowedMediaTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

type photoStore interface {
	List(ctx context.Context) []models.Photo
	Get(ctx context.Context, id string) (*models.Photo, error)
	Insert(ctx context.Context, photo models.Photo) (*models.Photo, error)
	Update(ctx context.Context, id string, patch models.PhotoPatch) (*models.Photo, error)
	Remove(ctx context.Context, id string) (*models.Photo, error)
}

type mediaStore interface {
	Save(key string, data []byte) (string, error)
	Read(key string) ([]byte, error)
	Delete(key string) error
}

type masker interface {
	Pixelate(src []byte, boxes []imaging.Box) ([]byte, error)
}

type eventPublisher interface {
	Publish(event models.PhotoEvent)
}

type mediaSigner interface {
	Generate(photoID, key string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// PhotoWorkflowOption configures the service.
type PhotoWorkflowOption func(*PhotoWorkflowService)

// WithEventPublisher routes workflow events to publisher.
func WithEventPublisher(publisher eventPublisher) PhotoWorkflowOption {
	return func(s *PhotoWorkflowService) {
		if publisher != nil {
			s.events = publisher
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(metrics *MetricsService) PhotoWorkflowOption {
	return func(s *PhotoWorkflowService) { s.metrics = metrics }
}

// WithMediaSigner enables signed media URLs on Display.
func WithMediaSigner(signer mediaSigner, basePath string) PhotoWorkflowOption {
	return func(s *PhotoWorkflowService) {
		s.signer = signer
		if basePath != "" {
			s.mediaBasePath = strings.TrimRight(basePath, "/")
		}
	}
}

// WithMaxUploadSize caps accepted upload sizes in bytes.
func WithMaxUploadSize(n int64) PhotoWorkflowOption {
	return func(s *PhotoWorkflowService) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithAnalysisQueue overrides the analysis worker queue settings.
func WithAnalysisQueue(cfg jobs.QueueConfig) PhotoWorkflowOption {
	return func(s *PhotoWorkflowService) { s.queueCfg = cfg }
}

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(now func() time.Time) PhotoWorkflowOption {
	return func(s *PhotoWorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// PhotoWorkflowService drives photos from upload through consent to publication.
// Every mutation runs under one lock so read-modify-write sequences never interleave.
type PhotoWorkflowService struct {
	mu sync.Mutex

	store     photoStore
	media     mediaStore
	analyzer  Analyzer
	masker    masker
	ledger    *ConsentLedger
	resolver  *MaskingResolver
	validator *validator.Validate
	events    eventPublisher
	metrics   *MetricsService
	signer    mediaSigner
	logger    *zap.Logger
	now       func() time.Time

	mediaBasePath string
	maxUpload     int64
	queueCfg      jobs.QueueConfig
	queue         *jobs.Queue
}

type noopPublisher struct{}

func (noopPublisher) Publish(models.PhotoEvent) {}

// NewPhotoWorkflowService wires the workflow. A nil masker uses a 16px pixelator.
func NewPhotoWorkflowService(store photoStore, media mediaStore, analyzer Analyzer, mask masker, logger *zap.Logger, opts ...PhotoWorkflowOption) *PhotoWorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mask == nil {
		mask = imaging.NewPixelator(16)
	}
	svc := &PhotoWorkflowService{
		store:         store,
		media:         media,
		analyzer:      analyzer,
		masker:        mask,
		ledger:        NewConsentLedger(),
		resolver:      NewMaskingResolver(),
		validator:     newPhotoValidator(),
		events:        noopPublisher{},
		logger:        logger,
		now:           time.Now,
		mediaBasePath: "/media",
		maxUpload:     10 * 1024 * 1024,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	if svc.queueCfg.Logger == nil {
		svc.queueCfg.Logger = logger
	}
	svc.queueCfg.OnDead = svc.analysisGaveUp
	svc.queue = jobs.NewQueue("analysis", svc.handleAnalysisJob, svc.queueCfg)
	return svc
}

func newPhotoValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("subject_name", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return strings.TrimSpace(name) != "" && len(name) <= maxSubjectName
	})
	return v
}

// Start begins processing analysis requests and requeues photos that were
// still in ai_processing when the process last stopped.
func (s *PhotoWorkflowService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	for _, photo := range s.store.List(ctx) {
		if photo.Status != models.PhotoStatusAIProcessing {
			continue
		}
		if err := s.queue.Enqueue(jobs.Job{ID: photo.ID, Type: analysisJobType}); err != nil {
			s.logger.Warn("requeue analysis failed", zap.String("photo_id", photo.ID), zap.Error(err))
			continue
		}
		s.logger.Info("analysis requeued", zap.String("photo_id", photo.ID))
	}
}

// Stop halts the analysis workers. In-flight simulated work is abandoned.
func (s *PhotoWorkflowService) Stop() {
	s.queue.Stop()
}

// List returns photos newest first, optionally filtered.
func (s *PhotoWorkflowService) List(ctx context.Context, query dto.PhotoQuery) []models.Photo {
	photos := s.store.List(ctx)
	if query.Status == "" && query.Child == "" {
		return photos
	}
	out := make([]models.Photo, 0, len(photos))
	for _, p := range photos {
		if query.Status != "" && p.Status != query.Status {
			continue
		}
		if query.Child != "" && !p.HasChild(query.Child) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get returns one photo.
func (s *PhotoWorkflowService) Get(ctx context.Context, id string) (*models.Photo, error) {
	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return photo, nil
}

// Upload stores an image (or external URL) and creates a photo awaiting consent.
// Analysis is not started; callers request it separately.
func (s *PhotoWorkflowService) Upload(ctx context.Context, req dto.UploadPhotoRequest, file *dto.MediaUpload) (*models.Photo, error) {
	req = normalizeUpload(req)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	photo := models.Photo{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Teacher:     req.Teacher,
		Date:        req.Date,
		Children:    req.Children,
		Status:      models.PhotoStatusPendingConsent,
	}
	s.ledger.Reset(&photo)

	switch {
	case file != nil:
		key, contentType, err := s.storeOriginal(id, file)
		if err != nil {
			return nil, err
		}
		photo.URL = key
		photo.ContentType = contentType
	case req.URL != "":
		photo.URL = req.URL
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "an image file or url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.Insert(ctx, photo)
	if err != nil {
		s.discardMedia(photo.URL)
		return nil, s.mapStoreError(err)
	}
	s.logger.Info("photo uploaded", zap.String("photo_id", stored.ID), zap.Int("children", len(stored.Children)))
	s.emit("upload", models.EventPhotoUploaded, stored)
	return stored, nil
}

// RequestAnalysis moves a photo into ai_processing and queues the analyzer run.
func (s *PhotoWorkflowService) RequestAnalysis(ctx context.Context, id string) (*models.Photo, error) {
	updated, previous, err := s.beginAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: analysisJobType}); err != nil {
		s.logger.Error("enqueue analysis failed", zap.String("photo_id", id), zap.Error(err))
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, rerr := s.store.Update(ctx, id, models.PhotoPatch{Status: &previous}); rerr != nil {
			s.logger.Warn("revert analysis status failed", zap.String("photo_id", id), zap.Error(rerr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "analysis queue unavailable")
	}
	return updated, nil
}

// RunAnalysis moves the photo into ai_processing and waits for the analyzer in
// the caller's goroutine. A failing analyzer leaves the photo in ai_failed.
func (s *PhotoWorkflowService) RunAnalysis(ctx context.Context, id string) (*models.Photo, error) {
	if _, _, err := s.beginAnalysis(ctx, id); err != nil {
		return nil, err
	}
	photo, err := s.analyze(ctx, id)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) || appErrors.Is(err, appErrors.ErrInvalidState) {
			return nil, err
		}
		s.markAnalysisFailed(context.WithoutCancel(ctx), id, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "analysis failed")
	}
	return photo, nil
}

func (s *PhotoWorkflowService) beginAnalysis(ctx context.Context, id string) (*models.Photo, models.PhotoStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", s.mapStoreError(err)
	}
	if photo.Status != models.PhotoStatusPendingConsent && photo.Status != models.PhotoStatusAIFailed {
		return nil, "", invalidState("analysis", photo.Status)
	}
	if photo.AIFeatures != nil {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidState, "photo has already been analyzed")
	}
	processing := models.PhotoStatusAIProcessing
	updated, err := s.store.Update(ctx, id, models.PhotoPatch{Status: &processing})
	if err != nil {
		return nil, "", s.mapStoreError(err)
	}
	s.emit("request_analysis", models.EventAnalysisStarted, updated)
	return updated, photo.Status, nil
}

func (s *PhotoWorkflowService) handleAnalysisJob(ctx context.Context, job jobs.Job) error {
	_, err := s.analyze(ctx, job.ID)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		// Shutting down; Start requeues photos left in ai_processing.
		return nil
	case appErrors.Is(err, appErrors.ErrNotFound) || appErrors.Is(err, appErrors.ErrInvalidState):
		s.logger.Info("analysis result discarded", zap.String("photo_id", job.ID), zap.Error(err))
		return nil
	}
	return err
}

func (s *PhotoWorkflowService) analysisGaveUp(job jobs.Job, err error) {
	s.markAnalysisFailed(context.Background(), job.ID, err)
}

func (s *PhotoWorkflowService) analyze(ctx context.Context, id string) (*models.Photo, error) {
	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if photo.Status != models.PhotoStatusAIProcessing {
		return nil, invalidState("analysis result", photo.Status)
	}

	start := s.now()
	features, err := s.analyzer.Analyze(*photo).Wait(ctx)
	s.metrics.ObserveAnalysis("analyze", err, s.now().Sub(start))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The photo may have been removed or moved on while the analyzer ran.
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if current.Status != models.PhotoStatusAIProcessing {
		return nil, invalidState("analysis result", current.Status)
	}

	processed := true
	pending := models.PhotoStatusPendingConsent
	patch := models.PhotoPatch{
		AIFeatures:  &features,
		AIProcessed: &processed,
		Status:      &pending,
	}
	next := current.Clone()
	next.AIFeatures = &features
	if len(next.ConsentPending) > 0 {
		key := s.mask(next, next.ConsentPending)
		patch.MaskedURL = &key
		patch.EditedImageURL = &key
	}
	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	s.discardStale([]string{current.MaskedURL, current.EditedImageURL}, updated)
	s.logger.Info("analysis attached", zap.String("photo_id", id), zap.Int("detections", len(features.PersonDetection)))
	s.emit("analysis", models.EventAnalysisCompleted, updated)
	return updated, nil
}

func (s *PhotoWorkflowService) markAnalysisFailed(ctx context.Context, id string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := s.store.Get(ctx, id)
	if err != nil || photo.Status != models.PhotoStatusAIProcessing {
		return
	}
	failed := models.PhotoStatusAIFailed
	updated, err := s.store.Update(ctx, id, models.PhotoPatch{Status: &failed})
	if err != nil {
		return
	}
	s.logger.Warn("analysis failed", zap.String("photo_id", id), zap.Error(cause))
	s.emit("analysis", models.EventAnalysisFailed, updated)
}

// SubmitConsentDecisions applies grants then revocations and approves the photo.
// While any subject is still pending on a processed photo, a masked derivative
// hiding every pending subject is produced.
func (s *PhotoWorkflowService) SubmitConsentDecisions(ctx context.Context, id string, req dto.ConsentDecisionRequest) (*models.Photo, error) {
	granted := trimAll(req.Granted)
	denied := trimAll(req.Denied)

	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	switch photo.Status {
	case models.PhotoStatusPendingConsent, models.PhotoStatusAIFailed, models.PhotoStatusApproved:
	default:
		return nil, invalidState("consent decisions", photo.Status)
	}
	if err := s.ledger.ValidateDecisions(*photo, granted, denied); err != nil {
		return nil, err
	}

	next := photo.Clone()
	for _, name := range granted {
		s.ledger.Grant(&next, name)
	}
	for _, name := range denied {
		s.ledger.Revoke(&next, name)
	}

	patch := models.PhotoPatch{
		ConsentGiven:   &next.ConsentGiven,
		ConsentPending: &next.ConsentPending,
	}
	switch {
	case s.ledger.IsFullyResolved(next):
		empty := ""
		patch.MaskedURL = &empty
		patch.EditedImageURL = &empty
	case len(denied) > 0 || photo.AIProcessed:
		key := s.mask(next, next.ConsentPending)
		processed := true
		patch.MaskedURL = &key
		patch.EditedImageURL = &key
		patch.AIProcessed = &processed
	}
	approved := models.PhotoStatusApproved
	patch.Status = &approved

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	s.discardStale([]string{photo.MaskedURL, photo.EditedImageURL}, updated)
	s.logger.Info("consent recorded",
		zap.String("photo_id", id),
		zap.Int("granted", len(updated.ConsentGiven)),
		zap.Int("pending", len(updated.ConsentPending)),
	)
	s.emit("consent", models.EventConsentRecorded, updated)
	return updated, nil
}

// Publish moves an approved photo to published. Publishing twice returns the
// already published record unchanged.
func (s *PhotoWorkflowService) Publish(ctx context.Context, id string) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	switch photo.Status {
	case models.PhotoStatusPublished:
		return photo, nil
	case models.PhotoStatusApproved:
	default:
		return nil, invalidState("publish", photo.Status)
	}

	published := models.PhotoStatusPublished
	patch := models.PhotoPatch{Status: &published}
	if photo.PublishedAt == nil {
		ts := s.now().UTC()
		patch.PublishedAt = &ts
	}
	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	s.logger.Info("photo published", zap.String("photo_id", id))
	s.emit("publish", models.EventPhotoPublished, updated)
	return updated, nil
}

// Remove deletes a photo in any state along with its media.
func (s *PhotoWorkflowService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return s.mapStoreError(err)
	}
	s.logger.Info("photo removed", zap.String("photo_id", id))
	s.events.Publish(models.PhotoEvent{
		Type:      models.EventPhotoRemoved,
		PhotoID:   removed.ID,
		Status:    removed.Status,
		Timestamp: s.now().UTC(),
	})
	s.metrics.RecordTransition("remove", removed.Status)
	return nil
}

// UpdateMetadata edits descriptive fields. Children can only change while the
// photo is pending consent, and changing them restarts consent tracking.
func (s *PhotoWorkflowService) UpdateMetadata(ctx context.Context, id string, req dto.UpdatePhotoRequest) (*models.Photo, error) {
	req = normalizeUpdate(req)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	patch := models.PhotoPatch{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Teacher:     req.Teacher,
		Date:        req.Date,
	}
	if req.Children != nil {
		if photo.Status != models.PhotoStatusPendingConsent {
			return nil, invalidState("editing children", photo.Status)
		}
		next := photo.Clone()
		next.Children = *req.Children
		s.ledger.Reset(&next)
		patch.Children = &next.Children
		patch.ConsentGiven = &next.ConsentGiven
		patch.ConsentPending = &next.ConsentPending
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	s.emit("update", models.EventPhotoUpdated, updated)
	return updated, nil
}

// RemoveSubject runs the simulated subject removal for an annotated person and,
// when that subject still lacks consent, stores an edited image hiding them along
// with every other pending subject.
func (s *PhotoWorkflowService) RemoveSubject(ctx context.Context, id, subjectID string) (*dto.SubjectRemovalResponse, error) {
	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if !subjectRemovalAllowed(photo.Status) {
		return nil, invalidState("subject removal", photo.Status)
	}
	if photo.AIFeatures == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo has no annotations")
	}
	person, ok := photo.AIFeatures.Person(subjectID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found in annotations")
	}

	start := s.now()
	result, err := s.analyzer.RemoveSubjectAndRebuildBackground(id, subjectID).Wait(ctx)
	s.metrics.ObserveAnalysis("remove_subject", err, s.now().Sub(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "subject removal failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if !subjectRemovalAllowed(current.Status) {
		return nil, invalidState("subject removal", current.Status)
	}
	if result.Success && contains(current.ConsentPending, person.Name) {
		boxes := append(subjectBoxes(*current, current.ConsentPending), person.BoundingBox)
		key := s.maskBoxes(*current, models.MediaPrefixMasked+id+"-"+subjectID+".png", boxes)
		processed := true
		previous := current.EditedImageURL
		current, err = s.store.Update(ctx, id, models.PhotoPatch{EditedImageURL: &key, AIProcessed: &processed})
		if err != nil {
			return nil, s.mapStoreError(err)
		}
		s.discardStale([]string{previous}, current)
		s.emit("remove_subject", models.EventSubjectRemoved, current)
	}
	return &dto.SubjectRemovalResponse{Result: result, Photo: current}, nil
}

func subjectRemovalAllowed(status models.PhotoStatus) bool {
	switch status {
	case models.PhotoStatusPendingConsent, models.PhotoStatusAIFailed, models.PhotoStatusApproved:
		return true
	}
	return false
}

// Display resolves the reference a viewer should render plus the original as fallback.
func (s *PhotoWorkflowService) Display(ctx context.Context, id string) (*dto.DisplayResponse, error) {
	photo, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	intended := s.resolver.Resolve(*photo)

	resp := &dto.DisplayResponse{PhotoID: id, Masked: s.resolver.IsMasked(*photo)}
	var expires time.Time
	if resp.URL, expires, err = s.publicURL(id, intended); err != nil {
		return nil, err
	}
	if resp.FallbackURL, _, err = s.publicURL(id, photo.URL); err != nil {
		return nil, err
	}
	if !expires.IsZero() {
		resp.ExpiresAt = &expires
	}
	return resp, nil
}

// OpenMedia resolves a signed media token to stored bytes owned by a live photo.
func (s *PhotoWorkflowService) OpenMedia(ctx context.Context, token string) (*dto.MediaFile, error) {
	if s.signer == nil {
		return nil, appErrors.ErrNotFound
	}
	photoID, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "media link invalid or expired")
	}
	photo, err := s.store.Get(ctx, photoID)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	if !contains(photo.MediaKeys(), key) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "media not found")
	}
	data, err := s.media.Read(key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "media not found")
	}
	return &dto.MediaFile{Key: key, ContentType: http.DetectContentType(data), Data: data}, nil
}

func (s *PhotoWorkflowService) publicURL(photoID, ref string) (string, time.Time, error) {
	if s.signer == nil || !models.IsMediaKey(ref) {
		return ref, time.Time{}, nil
	}
	token, expires, err := s.signer.Generate(photoID, ref)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign media url")
	}
	return s.mediaBasePath + "/" + token, expires, nil
}

func (s *PhotoWorkflowService) storeOriginal(id string, file *dto.MediaUpload) (string, string, error) {
	if file.Size > s.maxUpload {
		return "", "", appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("image exceeds %d bytes", s.maxUpload))
	}
	data, err := io.ReadAll(io.LimitReader(file.Reader, s.maxUpload+1))
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "read upload")
	}
	if int64(len(data)) > s.maxUpload {
		return "", "", appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("image exceeds %d bytes", s.maxUpload))
	}
	if len(data) == 0 {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "uploaded file is empty")
	}

	contentType := http.DetectContentType(data[:min(len(data), sniffLen)])
	ext, ok := allowedMediaTypes[contentType]
	if !ok {
		return "", "", appErrors.Clone(appErrors.ErrUnsupported, "only JPEG, PNG or WebP images are accepted")
	}

	key, err := s.media.Save(models.MediaPrefixOriginal+id+"."+ext, data)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store upload")
	}
	return key, contentType, nil
}

// mask pixelates the boxes of subjects and returns the derived media key.
func (s *PhotoWorkflowService) mask(photo models.Photo, subjects []string) string {
	return s.maskBoxes(photo, models.MediaPrefixMasked+photo.ID+".png", subjectBoxes(photo, subjects))
}

func subjectBoxes(photo models.Photo, subjects []string) []imaging.Box {
	boxes := make([]imaging.Box, 0, len(subjects))
	if photo.AIFeatures != nil {
		for _, person := range photo.AIFeatures.PersonDetection {
			if contains(subjects, person.Name) {
				boxes = append(boxes, person.BoundingBox)
			}
		}
	}
	return boxes
}

// maskBoxes writes a pixelated derivative to key. The whole frame is masked when
// boxes is empty; an undecodable or external source yields a flat placeholder.
func (s *PhotoWorkflowService) maskBoxes(photo models.Photo, key string, boxes []imaging.Box) string {
	var (
		out []byte
		err error
	)
	if models.IsMediaKey(photo.URL) {
		var src []byte
		if src, err = s.media.Read(photo.URL); err == nil {
			out, err = s.masker.Pixelate(src, boxes)
		}
	} else {
		err = errors.New("original is not stored locally")
	}
	if err != nil {
		s.logger.Warn("masking fell back to placeholder", zap.String("photo_id", photo.ID), zap.Error(err))
		if out, err = imaging.Placeholder(0, 0); err != nil {
			s.logger.Error("placeholder render failed", zap.String("photo_id", photo.ID), zap.Error(err))
			return key
		}
	}
	if _, err := s.media.Save(key, out); err != nil {
		s.logger.Error("store masked image failed", zap.String("photo_id", photo.ID), zap.Error(err))
	}
	return key
}

func (s *PhotoWorkflowService) discardMedia(ref string) {
	if !models.IsMediaKey(ref) {
		return
	}
	if err := s.media.Delete(ref); err != nil {
		s.logger.Warn("discard media failed", zap.String("key", ref), zap.Error(err))
	}
}

// discardStale deletes derivatives from previous that photo no longer references.
func (s *PhotoWorkflowService) discardStale(previous []string, photo *models.Photo) {
	live := photo.MediaKeys()
	for _, ref := range models.SortedUnique(previous) {
		if ref != "" && !contains(live, ref) {
			s.discardMedia(ref)
		}
	}
}

func (s *PhotoWorkflowService) emit(operation string, eventType models.EventType, photo *models.Photo) {
	snapshot := photo.Clone()
	s.events.Publish(models.PhotoEvent{
		Type:      eventType,
		PhotoID:   photo.ID,
		Status:    photo.Status,
		Photo:     &snapshot,
		Timestamp: s.now().UTC(),
	})
	s.metrics.RecordTransition(operation, photo.Status)
}

func (s *PhotoWorkflowService) validate(v interface{}) error {
	if err := s.validator.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return appErrors.Clone(appErrors.ErrValidation, strings.Join(msgs, "; "))
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, appErrors.ErrValidation.Message)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " must list at least " + fe.Param() + " entry"
		}
		return field + " is too short"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "unique":
		return field + " must not contain duplicates"
	case "subject_name":
		return field + " entries must be non-blank names"
	case "datetime":
		return field + " must be a date in YYYY-MM-DD form"
	case "url":
		return field + " must be a valid URL"
	default:
		return field + " is invalid"
	}
}

func (s *PhotoWorkflowService) mapStoreError(err error) error {
	if errors.Is(err, repository.ErrPhotoNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
}

func invalidState(operation string, status models.PhotoStatus) error {
	return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("%s not allowed while photo is %s", operation, status))
}

func normalizeUpload(req dto.UploadPhotoRequest) dto.UploadPhotoRequest {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Location = strings.TrimSpace(req.Location)
	req.Teacher = strings.TrimSpace(req.Teacher)
	req.Date = strings.TrimSpace(req.Date)
	req.URL = strings.TrimSpace(req.URL)
	req.Children = trimAll(req.Children)
	return req
}

func normalizeUpdate(req dto.UpdatePhotoRequest) dto.UpdatePhotoRequest {
	for _, field := range []*string{req.Title, req.Description, req.Location, req.Teacher, req.Date} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
	if req.Children != nil {
		children := trimAll(*req.Children)
		req.Children = &children
	}
	return req
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
