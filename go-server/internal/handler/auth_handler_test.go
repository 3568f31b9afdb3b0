package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shortly/shortly/go-server/internal/model"
	"github.com/shortly/shortly/go-server/internal/service"
)

func authRouter(svc *MockAuthService) *gin.Engine {
	h := NewAuthHandler(svc)
	router := gin.New()
	router.POST("/api/auth/register", h.Register)
	router.POST("/api/auth/login", h.Login)
	return router
}

func TestRegister_Success(t *testing.T) {
	setupTest(t)
	svc := new(MockAuthService)
	user := &model.User{ID: uuid.New(), Email: "a@x.io", PasswordHash: "$2a$10$secret", CreatedAt: time.Now()}
	svc.On("Register", mock.Anything, "a@x.io", "password1").Return(user, "tok", nil)

	w := doJSON(t, authRouter(svc), http.MethodPost, "/api/auth/register",
		gin.H{"email": "a@x.io", "password": "password1"})

	require.Equal(t, http.StatusCreated, w.Code)
	var got AuthResponse
	decode(t, w, &got)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, user.ID.String(), got.User.ID)
	assert.Equal(t, "a@x.io", got.User.Email)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.NotContains(t, w.Body.String(), `"data"`)
}

func TestRegister_Validation(t *testing.T) {
	setupTest(t)
	svc := new(MockAuthService)

	for _, body := range []gin.H{
		{"email": "not-an-email", "password": "password1"},
		{"email": "a@x.io", "password": "short"},
		{"password": "password1"},
	} {
		w := doJSON(t, authRouter(svc), http.MethodPost, "/api/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_PAYLOAD")
	}
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_EmailTaken(t *testing.T) {
	setupTest(t)
	svc := new(MockAuthService)
	svc.On("Register", mock.Anything, "a@x.io", "password1").Return(nil, "", service.ErrEmailTaken)

	w := doJSON(t, authRouter(svc), http.MethodPost, "/api/auth/register",
		gin.H{"email": "a@x.io", "password": "password1"})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Email already registered","code":"EMAIL_TAKEN"}`, w.Body.String())
}

func TestLogin_Success(t *testing.T) {
	setupTest(t)
	svc := new(MockAuthService)
	user := &model.User{ID: uuid.New(), Email: "a@x.io"}
	svc.On("Login", mock.Anything, "a@x.io", "password1").Return(user, "tok", nil)

	w := doJSON(t, authRouter(svc), http.MethodPost, "/api/auth/login",
		gin.H{"email": "a@x.io", "password": "password1"})

	require.Equal(t, http.StatusOK, w.Code)
	var got AuthResponse
	decode(t, w, &got)
	assert.Equal(t, "tok", got.Token)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	setupTest(t)
	svc := new(MockAuthService)
	svc.On("Login", mock.Anything, mock.Anything, mock.Anything).Return(nil, "", service.ErrInvalidCredentials)

	w := doJSON(t, authRouter(svc), http.MethodPost, "/api/auth/login",
		gin.H{"email": "a@x.io", "password": "whatever"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials","code":"INVALID_CREDENTIALS"}`, w.Body.String())
}
