package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shortly/shortly/go-server/internal/metrics"
	"github.com/shortly/shortly/go-server/internal/model"
	"github.com/shortly/shortly/go-server/internal/repository"
	"github.com/shortly/shortly/go-server/internal/tracing"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

type AuthService interface {
	Register(ctx context.Context, email, password string) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
}

// TokenIssuer is satisfied by *token.Manager.
type TokenIssuer interface {
	GenerateToken(userID uuid.UUID) (string, error)
}

type authService struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
	cost     int
	logger   *zap.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService hashes with the given bcrypt cost; zero means bcrypt.DefaultCost.
func NewAuthService(userRepo repository.UserRepository, tokens TokenIssuer, cost int) AuthService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &authService{
		userRepo: userRepo,
		tokens:   tokens,
		cost:     cost,
		logger:   zap.L().With(zap.String("component", "AuthService")),
	}
}

func (s *authService) Register(ctx context.Context, email, password string) (*model.User, string, error) {
	ctx, span := tracing.Start(ctx, "AuthService.Register")
	defer span.End()

	email = strings.TrimSpace(email)
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "invalid").Inc()
		return nil, "", ErrInvalidPassword
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
		return nil, "", ErrEmailTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		tracing.RecordError(span, err)
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return nil, "", err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return nil, "", err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: string(passwordHash),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
			return nil, "", ErrEmailTaken
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		tracing.RecordError(span, err)
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return nil, "", err
	}

	tokenString, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "error").Inc()
		return nil, "", err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	metrics.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	return user, tokenString, nil
}

// Login fails with ErrInvalidCredentials for both an unknown email and a
// wrong password, and spends one bcrypt comparison on either path.
func (s *authService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	ctx, span := tracing.Start(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			tracing.RecordError(span, err)
			metrics.AuthAttemptsTotal.WithLabelValues("login", "error").Inc()
			return nil, "", err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		metrics.AuthAttemptsTotal.WithLabelValues("login", "failure").Inc()
		return nil, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "failure").Inc()
		return nil, "", ErrInvalidCredentials
	}

	tokenString, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "error").Inc()
		return nil, "", err
	}

	metrics.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	return user, tokenString, nil
}

func (s *authService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("shortly-timing-equalizer"), s.cost)
	})
	return s.dummyHash
}
