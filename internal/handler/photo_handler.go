package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/noah-isme/kindrid-api/internal/dto"
	"github.com/noah-isme/kindrid-api/internal/middleware"
	"github.com/noah-isme/kindrid-api/internal/models"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/response"
)

type photoWorkflow interface {
	List(ctx context.Context, query dto.PhotoQuery) []models.Photo
	Get(ctx context.Context, id string) (*models.Photo, error)
	Upload(ctx context.Context, req dto.UploadPhotoRequest, file *dto.MediaUpload) (*models.Photo, error)
	UpdateMetadata(ctx context.Context, id string, req dto.UpdatePhotoRequest) (*models.Photo, error)
	RequestAnalysis(ctx context.Context, id string) (*models.Photo, error)
	RunAnalysis(ctx context.Context, id string) (*models.Photo, error)
	SubmitConsentDecisions(ctx context.Context, id string, req dto.ConsentDecisionRequest) (*models.Photo, error)
	Publish(ctx context.Context, id string) (*models.Photo, error)
	Remove(ctx context.Context, id string) error
	RemoveSubject(ctx context.Context, id, subjectID string) (*dto.SubjectRemovalResponse, error)
	Display(ctx context.Context, id string) (*dto.DisplayResponse, error)
}

// PhotoHandler exposes the photo consent workflow.
type PhotoHandler struct {
	photos photoWorkflow
}

// NewPhotoHandler constructs the handler.
func NewPhotoHandler(photos photoWorkflow) *PhotoHandler {
	return &PhotoHandler{photos: photos}
}

// List godoc
// @Summary List photos
// @Tags Photos
// @Produce json
// @Param status query string false "Filter by status"
// @Param child query string false "Filter by child name"
// @Success 200 {object} response.Envelope
// @Router /photos [get]
func (h *PhotoHandler) List(c *gin.Context) {
	query := dto.PhotoQuery{
		Status: models.PhotoStatus(strings.TrimSpace(c.Query("status"))),
		Child:  strings.TrimSpace(c.Query("child")),
	}
	if query.Status != "" && !query.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status filter"))
		return
	}
	photos := h.photos.List(c.Request.Context(), query)
	response.JSON(c, http.StatusOK, photos, &response.Pagination{Page: 1, PageSize: len(photos), TotalCount: len(photos)})
}

// Get godoc
// @Summary Get photo
// @Tags Photos
// @Produce json
// @Param id path string true "Photo ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /photos/{id} [get]
func (h *PhotoHandler) Get(c *gin.Context) {
	photo, err := h.photos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, photo)
}

// Upload godoc
// @Summary Upload photo
// @Description Accepts multipart form data with an "image" file, or JSON referencing an external url.
// @Tags Photos
// @Accept multipart/form-data,json
// @Produce json
// @Param image formData file false "Image file"
// @Param children formData []string true "Children pictured"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /photos [post]
func (h *PhotoHandler) Upload(c *gin.Context) {
	var (
		req  dto.UploadPhotoRequest
		file *dto.MediaUpload
	)

	if strings.HasPrefix(c.ContentType(), binding.MIMEMultipartPOSTForm) {
		if err := c.ShouldBindWith(&req, binding.FormMultipart); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload"))
			return
		}
		req.Children = splitChildren(req.Children)
		header, err := c.FormFile("image")
		if err != nil && err != http.ErrMissingFile {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid image upload"))
			return
		}
		if header != nil {
			upload, closer, err := openUpload(header)
			if err != nil {
				response.Error(c, err)
				return
			}
			defer closer.Close()
			file = upload
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}

	if req.Teacher == "" {
		if claims := middleware.CurrentUser(c); claims != nil && claims.Role == models.RoleTeacher {
			req.Teacher = claims.FullName
		}
	}

	photo, err := h.photos.Upload(c.Request.Context(), req, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, photo)
}

// Update godoc
// @Summary Edit photo metadata
// @Tags Photos
// @Accept json
// @Produce json
// @Param id path string true "Photo ID"
// @Param payload body dto.UpdatePhotoRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /photos/{id} [patch]
func (h *PhotoHandler) Update(c *gin.Context) {
	var req dto.UpdatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	photo, err := h.photos.UpdateMetadata(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, photo)
}

// Delete godoc
// @Summary Remove photo
// @Tags Photos
// @Param id path string true "Photo ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /photos/{id} [delete]
func (h *PhotoHandler) Delete(c *gin.Context) {
	if err := h.photos.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Analyze godoc
// @Summary Request AI analysis
// @Description Queues analysis and returns 202. With wait=true the call blocks until annotations are attached.
// @Tags Photos
// @Produce json
// @Param id path string true "Photo ID"
// @Param wait query bool false "Block until analysis completes"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /photos/{id}/analysis [post]
func (h *PhotoHandler) Analyze(c *gin.Context) {
	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if wait {
		photo, err := h.photos.RunAnalysis(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, photo)
		return
	}
	photo, err := h.photos.RequestAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, photo)
}

// Consent godoc
// @Summary Submit consent decisions
// @Tags Photos
// @Accept json
// @Produce json
// @Param id path string true "Photo ID"
// @Param payload body dto.ConsentDecisionRequest true "Granted and denied subject names"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /photos/{id}/consent [post]
func (h *PhotoHandler) Consent(c *gin.Context) {
	var req dto.ConsentDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	photo, err := h.photos.SubmitConsentDecisions(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, photo)
}

// Publish godoc
// @Summary Publish approved photo
// @Tags Photos
// @Produce json
// @Param id path string true "Photo ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /photos/{id}/publish [post]
func (h *PhotoHandler) Publish(c *gin.Context) {
	photo, err := h.photos.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, photo)
}

// RemoveSubject godoc
// @Summary Remove a detected subject
// @Tags Photos
// @Produce json
// @Param id path string true "Photo ID"
// @Param subjectId path string true "Detected person ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /photos/{id}/subjects/{subjectId}/removal [post]
func (h *PhotoHandler) RemoveSubject(c *gin.Context) {
	result, err := h.photos.RemoveSubject(c.Request.Context(), c.Param("id"), c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Display godoc
// @Summary Resolve displayable image
// @Tags Photos
// @Produce json
// @Param id path string true "Photo ID"
// @Success 200 {object} response.Envelope
// @Router /photos/{id}/display [get]
func (h *PhotoHandler) Display(c *gin.Context) {
	display, err := h.photos.Display(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, display)
}

type uploadCloser interface {
	Close() error
}

func openUpload(header *multipart.FileHeader) (*dto.MediaUpload, uploadCloser, error) {
	f, err := header.Open()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable image upload")
	}
	return &dto.MediaUpload{Filename: header.Filename, Size: header.Size, Reader: f}, f, nil
}

// splitChildren accepts repeated form fields as well as one comma separated value.
func splitChildren(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
