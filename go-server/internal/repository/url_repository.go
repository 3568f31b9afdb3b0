package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/metrics"
	"github.com/shortly/shortly/go-server/internal/model"
)

const (
	defaultCacheTTL = 24 * time.Hour
	dbTimeout       = 5 * time.Second
	slugCachePrefix = "slug:"
)

const urlColumns = "id, original_url, slug, visits, user_id, created_at, updated_at"

// URLRepository defines the interface for URL data operations
type URLRepository interface {
	Create(ctx context.Context, url *model.URL) error
	FindByOwnerAndURL(ctx context.Context, ownerID uuid.UUID, originalURL string) (*model.URL, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	FindOriginalBySlug(ctx context.Context, slug string) (string, error)
	IncrementVisits(ctx context.Context, slug string) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.URL, error)
}

// PostgresURLRepository implements URLRepository using PostgreSQL with an
// optional Redis read-through cache for slug lookups.
type PostgresURLRepository struct {
	db          DBTX
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewPostgresURLRepository creates a new PostgresURLRepository. redisClient may be nil.
func NewPostgresURLRepository(db DBTX, redisClient *redis.Client, cacheTTL time.Duration) *PostgresURLRepository {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &PostgresURLRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		logger:      zap.L().With(zap.String("component", "PostgresURLRepository")),
	}
}

// Create inserts a new row and fills in the database generated fields.
func (r *PostgresURLRepository) Create(ctx context.Context, url *model.URL) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveQuery("insert_url", time.Now())

	err := r.db.QueryRow(ctx,
		`INSERT INTO urls (original_url, slug, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, visits, created_at, updated_at`,
		url.OriginalURL, url.Slug, url.UserID,
	).Scan(&url.ID, &url.Visits, &url.CreatedAt, &url.UpdatedAt)
	if err != nil {
		// urls_slug_key rejected the insert
		if isUniqueViolation(err) {
			r.logger.Debug("Slug already taken", zap.String("slug", url.Slug))
			return ErrDuplicateSlug
		}
		r.logger.Error("Failed to insert URL", zap.Error(err), zap.String("slug", url.Slug))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	r.logger.Info("New URL created", zap.String("slug", url.Slug), zap.String("url", url.OriginalURL))
	return nil
}

// FindByOwnerAndURL returns the owner's existing row for originalURL, if any.
func (r *PostgresURLRepository) FindByOwnerAndURL(ctx context.Context, ownerID uuid.UUID, originalURL string) (*model.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveQuery("find_owned_url", time.Now())

	row := r.db.QueryRow(ctx,
		"SELECT "+urlColumns+" FROM urls WHERE user_id = $1 AND original_url = $2 ORDER BY created_at LIMIT 1",
		ownerID, originalURL)

	url, err := scanURL(row)
	if err != nil {
		// Owner never shortened this URL
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrURLNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("url", originalURL))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return url, nil
}

// SlugExists checks if a given slug is already in use by any owner
func (r *PostgresURLRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveQuery("slug_exists", time.Now())

	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM urls WHERE slug = $1)", slug).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check slug existence", zap.Error(err), zap.String("slug", slug))
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return exists, nil
}

// FindOriginalBySlug retrieves the target of a slug, checking cache first
func (r *PostgresURLRepository) FindOriginalBySlug(ctx context.Context, slug string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	key := slugCachePrefix + slug

	// Try cache first if Redis is available
	if r.redisClient != nil {
		val, err := r.redisClient.Get(ctx, key).Result()
		if err == nil {
			metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
			r.logger.Debug("URL found in cache", zap.String("slug", slug))
			return val, nil
		}

		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		if err != redis.Nil {
			r.logger.Warn("Cache error", zap.Error(err), zap.String("slug", slug))
		}
	}

	// Query database
	start := time.Now()
	var original string
	err := r.db.QueryRow(ctx, "SELECT original_url FROM urls WHERE slug = $1", slug).Scan(&original)
	metrics.ObserveQuery("find_by_slug", start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("URL not found", zap.String("slug", slug))
			return "", ErrURLNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("slug", slug))
		return "", fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	// Populate cache; slug -> url never changes once written
	if r.redisClient != nil {
		if err := r.redisClient.Set(ctx, key, original, r.cacheTTL).Err(); err != nil {
			r.logger.Warn("Failed to cache URL", zap.Error(err), zap.String("slug", slug))
		}
	}

	r.logger.Debug("URL found in database", zap.String("slug", slug))
	return original, nil
}

// IncrementVisits adds exactly one visit in a single statement.
func (r *PostgresURLRepository) IncrementVisits(ctx context.Context, slug string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveQuery("increment_visits", time.Now())

	tag, err := r.db.Exec(ctx,
		"UPDATE urls SET visits = visits + 1, updated_at = NOW() WHERE slug = $1", slug)
	if err != nil {
		r.logger.Error("Failed to increment visits", zap.Error(err), zap.String("slug", slug))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	// No row means the slug does not exist
	if tag.RowsAffected() == 0 {
		return ErrURLNotFound
	}
	return nil
}

// ListByOwner returns the owner's URLs, newest first.
func (r *PostgresURLRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	defer metrics.ObserveQuery("list_by_owner", time.Now())

	rows, err := r.db.Query(ctx,
		"SELECT "+urlColumns+" FROM urls WHERE user_id = $1 ORDER BY created_at DESC", ownerID)
	if err != nil {
		r.logger.Error("Failed to list URLs", zap.Error(err), zap.String("user_id", ownerID.String()))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	// Always return a non-nil slice so an empty listing encodes as []
	urls := make([]model.URL, 0)
	for rows.Next() {
		url, err := scanURL(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		urls = append(urls, *url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	return urls, nil
}

func scanURL(row pgx.Row) (*model.URL, error) {
	url := &model.URL{}
	err := row.Scan(&url.ID, &url.OriginalURL, &url.Slug, &url.Visits, &url.UserID, &url.CreatedAt, &url.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return url, nil
}
