package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/kindrid-api/internal/models"
	"github.com/noah-isme/kindrid-api/internal/service"
	"github.com/noah-isme/kindrid-api/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:       config.EnvDevelopment,
		Port:      0,
		APIPrefix: "/api/v1",
		StaticDir: filepath.Join(dir, "dist"),
		JWT:       config.JWTConfig{Secret: "jwt-secret", Expiration: time.Hour, Issuer: "kindrid"},
		Media: config.MediaConfig{
			StorageDir:       filepath.Join(dir, "media"),
			SignedURLSecret:  "media-secret",
			SignedURLTTL:     time.Minute,
			MaxFileSizeBytes: 1 << 20,
		},
		Slot:     config.SlotConfig{Backend: config.SlotBackendMemory, Name: "test"},
		Analyzer: config.AnalyzerConfig{Seed: 7, Workers: 1},
	}
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	app.Start(ctx)
	t.Cleanup(func() {
		cancel()
		app.Close()
	})
	return app
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartUpload(t *testing.T, children ...string) *http.Request {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 32, 32))))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("title", "Playground"))
	for _, child := range children {
		require.NoError(t, writer.WriteField("children", child))
	}
	part, err := writer.CreateFormFile("image", "playground.png")
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestWorkflowOverHTTP(t *testing.T) {
	app := startApp(t, testConfig(t))
	h := app.Handler()

	w, env := do(t, h, multipartUpload(t, "Emma", "Lucas"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var photo models.Photo
	require.NoError(t, json.Unmarshal(env.Data, &photo))
	assert.Equal(t, models.PhotoStatusPendingConsent, photo.Status)
	assert.Equal(t, []string{"Emma", "Lucas"}, photo.ConsentPending)

	w, env = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/photos/"+photo.ID+"/publish", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	w, _ = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/photos/"+photo.ID+"/analysis?wait=true", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, h, jsonRequest(http.MethodPost, "/api/v1/photos/"+photo.ID+"/consent", `{"granted":["Emma"],"denied":["Lucas"]}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &photo))
	assert.Equal(t, models.PhotoStatusApproved, photo.Status)
	assert.NotEmpty(t, photo.MaskedURL)

	w, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+photo.ID+"/display", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var display struct {
		URL    string `json:"url"`
		Masked bool   `json:"masked"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &display))
	assert.True(t, display.Masked)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, display.URL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w, env = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/photos/"+photo.ID+"/publish", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &photo))
	assert.Equal(t, models.PhotoStatusPublished, photo.Status)
	require.NotNil(t, photo.PublishedAt)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+photo.ID+"/consent-report?format=csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Lucas,pending")

	w, _ = do(t, h, httptest.NewRequest(http.MethodDelete, "/api/v1/photos/"+photo.ID, nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+photo.ID, nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, display.URL, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadValidationOverHTTP(t *testing.T) {
	app := startApp(t, testConfig(t))

	w, env := do(t, app.Handler(), jsonRequest(http.MethodPost, "/api/v1/photos", `{"title":"x","children":[],"url":"https://example.com/a.jpg"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestAuthEnabledEnforcesRoles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	app := startApp(t, cfg)
	h := app.Handler()

	auth := service.NewAuthService(nil, service.AuthConfig{AccessTokenSecret: "jwt-secret", Issuer: "kindrid"})
	parent, err := auth.IssueToken("p1", models.RoleParent, "", "")
	require.NoError(t, err)
	teacher, err := auth.IssueToken("t1", models.RoleTeacher, "", "Ms. Rivera")
	require.NoError(t, err)

	w, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := jsonRequest(http.MethodPost, "/api/v1/photos", `{"children":["Emma"],"url":"https://example.com/a.jpg"}`)
	req.Header.Set("Authorization", "Bearer "+parent.AccessToken)
	w, _ = do(t, h, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = jsonRequest(http.MethodPost, "/api/v1/photos", `{"children":["Emma"],"url":"https://example.com/a.jpg"}`)
	req.Header.Set("Authorization", "Bearer "+teacher.AccessToken)
	w, env := do(t, h, req)
	require.Equal(t, http.StatusCreated, w.Code)
	var photo models.Photo
	require.NoError(t, json.Unmarshal(env.Data, &photo))
	assert.Equal(t, "Ms. Rivera", photo.Teacher)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("Authorization", "Bearer "+parent.AccessToken)
	w, _ = do(t, h, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProbesAndFallbacks(t *testing.T) {
	app := startApp(t, testConfig(t))
	h := app.Handler()

	w, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)

	w, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="unmatched"`)
}
