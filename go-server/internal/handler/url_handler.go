package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/metrics"
	"github.com/shortly/shortly/go-server/internal/middleware"
	"github.com/shortly/shortly/go-server/internal/model"
)

type CreateURLRequest struct {
	OriginalURL string `json:"originalUrl" binding:"required,max=2048"`
	CustomSlug  string `json:"customSlug" binding:"omitempty,slug"`
}

// URLService is the subset of *service.URLService the handler needs.
type URLService interface {
	Allocate(ctx context.Context, originalURL, desiredSlug string, ownerID *uuid.UUID) (*model.URL, error)
	Resolve(ctx context.Context, slug string) (string, error)
	RecordVisit(ctx context.Context, slug string) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.URL, error)
}

type URLHandler struct {
	service URLService
	baseURL string
	logger  *zap.Logger
}

func NewURLHandler(service URLService, baseURL string) *URLHandler {
	return &URLHandler{
		service: service,
		baseURL: baseURL,
		logger:  zap.L().With(zap.String("component", "URLHandler")),
	}
}

// CreateURL handles POST /api/urls.
func (h *URLHandler) CreateURL(c *gin.Context) {
	var req CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	var ownerID *uuid.UUID
	if id, err := middleware.GetUserIDFromContext(c); err == nil {
		ownerID = &id
	}

	url, err := h.service.Allocate(c.Request.Context(), req.OriginalURL, req.CustomSlug, ownerID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, Document{Data: urlResource(url, h.baseURL)})
}

// ListMyURLs handles GET /api/urls/my-urls.
func (h *URLHandler) ListMyURLs(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		h.logger.Warn("Failed to extract user ID from context", zap.Error(err))
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Unauthorized access",
			Code:  "MISSING_TOKEN",
		})
		return
	}

	urls, err := h.service.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	resources := make([]Resource, 0, len(urls))
	for i := range urls {
		resources = append(resources, urlResource(&urls[i], h.baseURL))
	}

	c.JSON(http.StatusOK, Document{Data: resources})
}

// Redirect handles GET /:slug. The visit is recorded after the 301 is
// written; a failure there is logged and never changes the response.
func (h *URLHandler) Redirect(c *gin.Context) {
	slug := c.Param("slug")

	original, err := h.service.Resolve(c.Request.Context(), slug)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	// repeat visits must come back through here to be counted
	c.Header("Cache-Control", "private, no-cache")
	c.Redirect(http.StatusMovedPermanently, original)

	if err := h.service.RecordVisit(context.WithoutCancel(c.Request.Context()), slug); err != nil {
		metrics.VisitRecordErrorsTotal.Inc()
		h.logger.Error("Failed to record visit", zap.Error(err), zap.String("slug", slug))
	}
}
