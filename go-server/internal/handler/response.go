package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/model"
	"github.com/shortly/shortly/go-server/internal/repository"
	"github.com/shortly/shortly/go-server/internal/service"
)

const urlResourceType = "urls"

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Document is the {"data": ...} envelope used by the URL endpoints.
type Document struct {
	Data interface{} `json:"data"`
}

type Resource struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Attributes interface{} `json:"attributes"`
}

type URLAttributes struct {
	OriginalURL string    `json:"originalUrl"`
	Slug        string    `json:"slug"`
	ShortURL    string    `json:"shortUrl"`
	Visits      int64     `json:"visits"`
	CreatedAt   time.Time `json:"createdAt"`
}

type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResponse struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

func urlResource(u *model.URL, baseURL string) Resource {
	return Resource{
		ID:   u.ID.String(),
		Type: urlResourceType,
		Attributes: URLAttributes{
			OriginalURL: u.OriginalURL,
			Slug:        u.Slug,
			ShortURL:    baseURL + "/" + u.Slug,
			Visits:      u.Visits,
			CreatedAt:   u.CreatedAt,
		},
	}
}

func userView(u *model.User) UserView {
	return UserView{ID: u.ID.String(), Email: u.Email, CreatedAt: u.CreatedAt}
}

// writeError maps service and repository errors to status codes and machine codes.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_URL"})
	case errors.Is(err, service.ErrInvalidSlug):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SLUG"})
	case errors.Is(err, service.ErrInvalidPassword):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PAYLOAD"})
	case errors.Is(err, service.ErrSlugTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "This slug is already in use", Code: "SLUG_TAKEN"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Email already registered", Code: "EMAIL_TAKEN"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials", Code: "INVALID_CREDENTIALS"})
	case errors.Is(err, service.ErrURLNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Short URL not found", Code: "URL_NOT_FOUND"})
	case errors.Is(err, service.ErrSlugExhausted):
		logger.Error("Slug generation max attempts reached", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Service temporarily unavailable",
			Code:  "SLUG_GENERATION_FAILED",
		})
	case errors.Is(err, repository.ErrDatabaseError):
		logger.Error("Database error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Database error", Code: "DB_ERROR"})
	default:
		logger.Error("Unexpected error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: "INTERNAL_ERROR"})
	}
}

// writeBindError reports a request body that failed to decode or validate.
// Field codes mirror what the service would have returned for the same input.
func writeBindError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("Invalid request body", zap.Error(err))
	_ = c.Error(err).SetType(gin.ErrorTypeBind)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "CustomSlug":
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "slug must contain only letters, digits, '_' or '-'",
				Code:  "INVALID_SLUG",
			})
			return
		case "OriginalURL":
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "originalUrl is required and must be at most 2048 characters",
				Code:  "INVALID_URL",
			})
			return
		case "Email":
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "A valid email is required", Code: "INVALID_PAYLOAD"})
			return
		case "Password":
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Password must be between 8 and 72 characters",
				Code:  "INVALID_PAYLOAD",
			})
			return
		}
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Code: "INVALID_PAYLOAD"})
}
