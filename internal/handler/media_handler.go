package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/dto"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/imaging"
	"github.com/noah-isme/kindrid-api/pkg/response"
)

const maxThumbnailEdge = 1024

type mediaOpener interface {
	OpenMedia(ctx context.Context, token string) (*dto.MediaFile, error)
}

// MediaHandler streams stored images behind signed tokens.
type MediaHandler struct {
	media  mediaOpener
	logger *zap.Logger
}

// NewMediaHandler constructs the handler.
func NewMediaHandler(media mediaOpener, logger *zap.Logger) *MediaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaHandler{media: media, logger: logger}
}

// Serve godoc
// @Summary Fetch stored image
// @Description Serves the original or masked image a signed token points at. w requests a JPEG thumbnail.
// @Tags Media
// @Produce image/png,image/jpeg,image/webp
// @Param token path string true "Signed media token"
// @Param w query int false "Thumbnail longest edge in pixels"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /media/{token} [get]
func (h *MediaHandler) Serve(c *gin.Context) {
	file, err := h.media.OpenMedia(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	data, contentType := file.Data, file.ContentType
	if raw := c.Query("w"); raw != "" {
		edge, err := strconv.Atoi(raw)
		if err != nil || edge <= 0 || edge > maxThumbnailEdge {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "w must be between 1 and 1024"))
			return
		}
		thumb, err := imaging.Thumbnail(file.Data, uint(edge))
		if err != nil {
			h.logger.Debug("thumbnail unavailable, serving full image", zap.String("key", file.Key), zap.Error(err))
		} else {
			data, contentType = thumb, "image/jpeg"
		}
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, data)
}
