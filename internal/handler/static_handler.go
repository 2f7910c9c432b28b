package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/response"
)

// StaticHandler serves the built single page app and falls back to index.html
// for client-side routes.
type StaticHandler struct {
	root     string
	reserved []string
}

// NewStaticHandler serves files from root. Paths under reserved prefixes never
// fall back to the SPA and answer with a JSON 404 instead.
func NewStaticHandler(root string, reserved ...string) *StaticHandler {
	return &StaticHandler{root: root, reserved: reserved}
}

// NoRoute is registered as the engine's fallback handler.
func (h *StaticHandler) NoRoute(c *gin.Context) {
	reqPath := c.Request.URL.Path
	if (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) || h.isReserved(reqPath) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
		return
	}

	if file, ok := h.lookup(reqPath); ok {
		c.File(file)
		return
	}
	index := filepath.Join(h.root, "index.html")
	if _, err := os.Stat(index); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "app bundle not found"))
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(index)
}

func (h *StaticHandler) lookup(reqPath string) (string, bool) {
	cleaned := path.Clean("/" + reqPath)
	if cleaned == "/" {
		return "", false
	}
	candidate := filepath.Join(h.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return "", false
	}
	return candidate, true
}

func (h *StaticHandler) isReserved(reqPath string) bool {
	for _, prefix := range h.reserved {
		if prefix != "" && (reqPath == prefix || strings.HasPrefix(reqPath, strings.TrimRight(prefix, "/")+"/")) {
			return true
		}
	}
	return false
}
