package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livepreview/internal/config"
	"livepreview/internal/logger"
	"livepreview/internal/models"
	"livepreview/internal/services"
	"livepreview/internal/store"
	"livepreview/internal/web"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{ err error }

func (g stubGenerator) Generate(ctx context.Context, prompt string) (*services.Scaffold, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &services.Scaffold{Dir: "unused"}, nil
}

type stubPublisher struct{ url string }

func (p stubPublisher) Publish(ctx context.Context, sc *services.Scaffold, siteName string) (string, error) {
	return p.url, nil
}

// brokenStore fails every call with a non-domain error.
type brokenStore struct{}

func (brokenStore) Insert(ctx context.Context, p *models.Preview) error {
	return errors.New("connection refused")
}
func (brokenStore) Read(ctx context.Context, id string) (*models.Preview, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Update(ctx context.Context, id string, patch store.Patch) (*models.Preview, error) {
	return nil, errors.New("connection refused")
}

func setup(t *testing.T, st store.Store, gen services.Generator) (*echo.Echo, *services.Orchestrator) {
	t.Helper()
	cfg := &config.Config{MaxWorkflows: 2, StepTimeout: time.Second, KeepScaffolds: true}
	orch := services.NewOrchestrator(cfg, st, gen, stubPublisher{url: "https://p123.netlify.app"}, logger.NewNop())

	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	e := echo.New()
	e.Renderer = renderer
	RegisterRoutes(e, e.Group("/api"), orch, logger.NewNop())
	return e, orch
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func drain(t *testing.T, orch *services.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, orch.Wait(ctx))
}

func TestHealth(t *testing.T) {
	e, _ := setup(t, store.NewMemoryStore(), stubGenerator{})

	rec := do(e, http.MethodGet, "/api/preview/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","message":"Preview Orchestrator API is running"}`, rec.Body.String())
}

func TestCreateAndPollPreview(t *testing.T) {
	e, orch := setup(t, store.NewMemoryStore(), stubGenerator{})

	rec := do(e, http.MethodPost, "/api/preview", `{"prompt":"a todo app"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var created struct {
		Success   bool   `json:"success"`
		PreviewID string `json:"previewId"`
		Message   string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, "Preview generation started", created.Message)
	require.NotEmpty(t, created.PreviewID)

	drain(t, orch)

	rec = do(e, http.MethodGet, "/api/preview/"+created.PreviewID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.PreviewID, got["id"])
	assert.Equal(t, "a todo app", got["prompt"])
	assert.Equal(t, "anonymous", got["userId"])
	assert.Equal(t, "live", got["status"])
	assert.Equal(t, "https://p123.netlify.app", got["liveUrl"])
	assert.Contains(t, got, "error")
	assert.Nil(t, got["error"])
	assert.Contains(t, got, "createdAt")
	assert.Contains(t, got, "updatedAt")

	again := do(e, http.MethodGet, "/api/preview/"+created.PreviewID, "")
	assert.Equal(t, rec.Body.String(), again.Body.String())
}

func TestCreatePreviewFailureIsVisibleWhenPolling(t *testing.T) {
	e, orch := setup(t, store.NewMemoryStore(), stubGenerator{err: &services.GenerationError{Msg: "template missing"}})

	rec := do(e, http.MethodPost, "/api/preview", `{"prompt":"a todo app","userId":"u1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created struct {
		PreviewID string `json:"previewId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	drain(t, orch)

	rec = do(e, http.MethodGet, "/api/preview/"+created.PreviewID, "")
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "template missing", got["error"])
	assert.Nil(t, got["liveUrl"])
	assert.Equal(t, "u1", got["userId"])
}

func TestCreatePreviewValidation(t *testing.T) {
	e, _ := setup(t, store.NewMemoryStore(), stubGenerator{})

	cases := []struct {
		name string
		body string
	}{
		{"missing prompt", `{}`},
		{"blank prompt", `{"prompt":"   "}`},
		{"malformed json", `{"prompt":`},
		{"wrong type", `{"prompt":42}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/preview", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestCreatePreviewStoreFailure(t *testing.T) {
	e, _ := setup(t, brokenStore{}, stubGenerator{})

	rec := do(e, http.MethodPost, "/api/preview", `{"prompt":"a todo app"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Failed to start preview generation"}`, rec.Body.String())
}

func TestGetPreviewNotFound(t *testing.T) {
	e, _ := setup(t, store.NewMemoryStore(), stubGenerator{})

	rec := do(e, http.MethodGet, "/api/preview/unknown-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Preview not found"}`, rec.Body.String())
}

func TestGetPreviewStoreFailure(t *testing.T) {
	e, _ := setup(t, brokenStore{}, stubGenerator{})

	rec := do(e, http.MethodGet, "/api/preview/some-id", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPreviewPage(t *testing.T) {
	e, orch := setup(t, store.NewMemoryStore(), stubGenerator{})

	id, err := orch.Create(context.Background(), "<b>a todo app</b>", "")
	require.NoError(t, err)
	drain(t, orch)

	rec := do(e, http.MethodGet, "/preview/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `href="https://p123.netlify.app"`)
	assert.Contains(t, body, "&lt;b&gt;a todo app&lt;/b&gt;")
	assert.NotContains(t, body, `http-equiv="refresh"`, "terminal previews stop refreshing")

	rec = do(e, http.MethodGet, "/preview/unknown-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Preview not found")
}
