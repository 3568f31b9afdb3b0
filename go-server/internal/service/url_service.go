package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/metrics"
	"github.com/shortly/shortly/go-server/internal/model"
	"github.com/shortly/shortly/go-server/internal/repository"
	"github.com/shortly/shortly/go-server/internal/tracing"
)

type URLService struct {
	repo    repository.URLRepository
	opts    SlugOptions
	newSlug func(length int) (string, error)
	logger  *zap.Logger
}

func NewURLService(repo repository.URLRepository, opts SlugOptions) *URLService {
	defaults := DefaultSlugOptions()
	if opts.Length <= 0 {
		opts.Length = defaults.Length
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = defaults.MaxLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}

	return &URLService{
		repo:    repo,
		opts:    opts,
		newSlug: randomSlug,
		logger:  zap.L().With(zap.String("component", "URLService")),
	}
}

// Allocate maps originalURL to a slug. An owner resubmitting a URL they
// already shortened gets the existing row back. An empty desiredSlug means
// a random one is generated.
func (s *URLService) Allocate(ctx context.Context, originalURL, desiredSlug string, ownerID *uuid.UUID) (*model.URL, error) {
	ctx, span := tracing.Start(ctx, "URLService.Allocate",
		attribute.Bool("custom_slug", desiredSlug != ""),
		attribute.Bool("owned", ownerID != nil))
	defer span.End()

	originalURL = strings.TrimSpace(originalURL)
	if err := ValidateURL(originalURL); err != nil {
		metrics.URLCreationTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	desiredSlug = strings.TrimSpace(desiredSlug)
	if desiredSlug != "" {
		if err := ValidateSlug(desiredSlug, s.opts.MaxLength); err != nil {
			metrics.URLCreationTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	if ownerID != nil {
		existing, err := s.repo.FindByOwnerAndURL(ctx, *ownerID, originalURL)
		if err == nil {
			s.logger.Info("URL already shortened by owner, returning existing slug",
				zap.String("slug", existing.Slug),
				zap.String("user_id", ownerID.String()))
			metrics.URLCreationTotal.WithLabelValues("existing").Inc()
			return existing, nil
		}
		if !errors.Is(err, repository.ErrURLNotFound) {
			tracing.RecordError(span, err)
			metrics.URLCreationTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	var (
		url *model.URL
		err error
	)
	if desiredSlug != "" {
		url, err = s.createWithSlug(ctx, originalURL, desiredSlug, ownerID)
	} else {
		url, err = s.createWithGeneratedSlug(ctx, originalURL, ownerID)
	}

	switch {
	case err == nil:
		metrics.URLCreationTotal.WithLabelValues("created").Inc()
		span.SetAttributes(attribute.String("slug", url.Slug))
	case errors.Is(err, ErrSlugTaken):
		metrics.URLCreationTotal.WithLabelValues("conflict").Inc()
	default:
		tracing.RecordError(span, err)
		metrics.URLCreationTotal.WithLabelValues("error").Inc()
	}
	return url, err
}

func (s *URLService) createWithSlug(ctx context.Context, originalURL, slug string, ownerID *uuid.UUID) (*model.URL, error) {
	exists, err := s.repo.SlugExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrSlugTaken
	}

	url := &model.URL{OriginalURL: originalURL, Slug: slug, UserID: ownerID}
	if err := s.repo.Create(ctx, url); err != nil {
		// lost a race with a concurrent allocation of the same slug
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	return url, nil
}

func (s *URLService) createWithGeneratedSlug(ctx context.Context, originalURL string, ownerID *uuid.UUID) (*model.URL, error) {
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		slug, err := s.newSlug(s.opts.Length)
		if err != nil {
			return nil, err
		}

		// Reserved words would be shadowed by static routes; re-roll
		if isReservedSlug(slug) {
			s.logger.Debug("Generated slug is reserved", zap.String("slug", slug), zap.Int("attempt", attempt))
			continue
		}

		exists, err := s.repo.SlugExists(ctx, slug)
		if err != nil {
			return nil, err
		}
		if exists {
			metrics.SlugCollisionsTotal.Inc()
			s.logger.Debug("Generated slug collided", zap.String("slug", slug), zap.Int("attempt", attempt))
			continue
		}

		url := &model.URL{OriginalURL: originalURL, Slug: slug, UserID: ownerID}
		err = s.repo.Create(ctx, url)
		if errors.Is(err, repository.ErrDuplicateSlug) {
			metrics.SlugCollisionsTotal.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return url, nil
	}

	s.logger.Error("Slug space exhausted", zap.Int("attempts", s.opts.MaxAttempts), zap.Int("length", s.opts.Length))
	return nil, fmt.Errorf("%w (%d)", ErrSlugExhausted, s.opts.MaxAttempts)
}

// Resolve returns the original URL for slug.
func (s *URLService) Resolve(ctx context.Context, slug string) (string, error) {
	ctx, span := tracing.Start(ctx, "URLService.Resolve", attribute.String("slug", slug))
	defer span.End()

	if !IsSlugShaped(slug, s.opts.MaxLength) {
		metrics.URLRedirectTotal.WithLabelValues("not_found").Inc()
		return "", ErrURLNotFound
	}

	original, err := s.repo.FindOriginalBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrURLNotFound) {
			metrics.URLRedirectTotal.WithLabelValues("not_found").Inc()
			return "", ErrURLNotFound
		}
		tracing.RecordError(span, err)
		metrics.URLRedirectTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.URLRedirectTotal.WithLabelValues("found").Inc()
	return original, nil
}

// RecordVisit adds one visit to slug.
func (s *URLService) RecordVisit(ctx context.Context, slug string) error {
	ctx, span := tracing.Start(ctx, "URLService.RecordVisit", attribute.String("slug", slug))
	defer span.End()

	if err := s.repo.IncrementVisits(ctx, slug); err != nil {
		if errors.Is(err, repository.ErrURLNotFound) {
			return ErrURLNotFound
		}
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// ListByOwner returns the owner's URLs, newest first.
func (s *URLService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.URL, error) {
	ctx, span := tracing.Start(ctx, "URLService.ListByOwner")
	defer span.End()

	urls, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return urls, nil
}
