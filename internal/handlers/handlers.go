package handlers

import (
	"errors"
	"net/http"

	"livepreview/internal/logger"
	"livepreview/internal/models"
	"livepreview/internal/services"
	"livepreview/internal/store"
	"livepreview/internal/web"

	"github.com/labstack/echo/v4"
)

const pageRefreshSeconds = 3

type PreviewHandler struct {
	orch *services.Orchestrator
	log  *logger.Logger
}

type createPreviewRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"userId"`
}

type createPreviewResponse struct {
	Success   bool   `json:"success"`
	PreviewID string `json:"previewId,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

func RegisterRoutes(e *echo.Echo, api *echo.Group, orch *services.Orchestrator, log *logger.Logger) {
	h := &PreviewHandler{orch: orch, log: log.With("component", "PreviewHandler")}

	api.GET("/preview/health", h.Health)
	api.POST("/preview", h.CreatePreview)
	api.GET("/preview/:id", h.GetPreview)

	e.GET("/preview/:id", h.PreviewPage)
}

func (h *PreviewHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Preview Orchestrator API is running",
	})
}

func (h *PreviewHandler) CreatePreview(c echo.Context) error {
	var req createPreviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, createPreviewResponse{Error: "invalid request body"})
	}

	id, err := h.orch.Create(c.Request().Context(), req.Prompt, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPrompt):
			return c.JSON(http.StatusBadRequest, createPreviewResponse{Error: err.Error()})
		case errors.Is(err, services.ErrShuttingDown):
			return c.JSON(http.StatusServiceUnavailable, createPreviewResponse{Error: err.Error()})
		}
		h.log.Error("Failed to create preview", "error", err)
		return c.JSON(http.StatusInternalServerError, createPreviewResponse{Error: "Failed to start preview generation"})
	}

	return c.JSON(http.StatusAccepted, createPreviewResponse{
		Success:   true,
		PreviewID: id,
		Message:   "Preview generation started",
	})
}

func (h *PreviewHandler) GetPreview(c echo.Context) error {
	p, err := h.orch.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
		}
		h.log.Error("Failed to read preview", "preview_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read preview"})
	}
	return c.JSON(http.StatusOK, p)
}

// PreviewPage is a human-readable view of GetPreview that refreshes itself
// until the preview is terminal.
func (h *PreviewHandler) PreviewPage(c echo.Context) error {
	id := c.Param("id")
	p, err := h.orch.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Render(http.StatusNotFound, "not_found.html", web.PageData{Title: "Preview not found", ID: id})
		}
		return err
	}

	data := web.PageData{Title: "Preview " + string(p.Status), ID: id, Preview: p}
	if !p.Status.Terminal() {
		data.Refresh = pageRefreshSeconds
	}
	if p.Status == models.StatusLive {
		data.Title = "Preview live"
	}
	return c.Render(http.StatusOK, "preview.html", data)
}
