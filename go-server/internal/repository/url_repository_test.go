package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortly/shortly/go-server/internal/metrics"
	"github.com/shortly/shortly/go-server/internal/model"
)

const (
	testTTL      = time.Hour
	findBySlugRe = `SELECT original_url FROM urls WHERE slug = \$1`
)

type repoFixture struct {
	repo *PostgresURLRepository
	db   pgxmock.PgxPoolIface
	mr   *miniredis.Miniredis
}

func newFixture(t *testing.T, withCache bool) *repoFixture {
	t.Helper()

	db, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(db.Close)

	f := &repoFixture{db: db}
	var client *redis.Client
	if withCache {
		f.mr = miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: f.mr.Addr(), MaxRetries: -1})
		t.Cleanup(func() { client.Close() })
	}
	f.repo = NewPostgresURLRepository(db, client, testTTL)
	return f
}

func TestFindOriginalBySlug_CacheHit(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.mr.Set("slug:abc", "https://example.com/a"))

	hits := metrics.CacheHitsTotal.WithLabelValues("redis")
	before := testutil.ToFloat64(hits)

	original, err := f.repo.FindOriginalBySlug(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", original)
	assert.Equal(t, before+1, testutil.ToFloat64(hits))

	// database never consulted
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestFindOriginalBySlug_CacheMissPopulatesCache(t *testing.T) {
	f := newFixture(t, true)
	f.db.ExpectQuery(findBySlugRe).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"original_url"}).AddRow("https://example.com/a"))

	misses := metrics.CacheMissesTotal.WithLabelValues("redis")
	before := testutil.ToFloat64(misses)

	original, err := f.repo.FindOriginalBySlug(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", original)
	assert.Equal(t, before+1, testutil.ToFloat64(misses))
	require.NoError(t, f.db.ExpectationsWereMet())

	cached, err := f.mr.Get("slug:abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", cached)
	assert.Equal(t, testTTL, f.mr.TTL("slug:abc"))

	// second lookup is served from Redis
	original, err = f.repo.FindOriginalBySlug(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", original)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestFindOriginalBySlug_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t, true)
	f.db.ExpectQuery(findBySlugRe).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := f.repo.FindOriginalBySlug(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrURLNotFound)
	assert.False(t, f.mr.Exists("slug:nope"))
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestFindOriginalBySlug_RedisErrorFallsBackToDatabase(t *testing.T) {
	f := newFixture(t, true)
	f.mr.SetError("LOADING Redis is loading the dataset in memory")
	f.db.ExpectQuery(findBySlugRe).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"original_url"}).AddRow("https://example.com/a"))

	original, err := f.repo.FindOriginalBySlug(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", original)
	assert.NoError(t, f.db.ExpectationsWereMet())

	f.mr.SetError("")
	assert.False(t, f.mr.Exists("slug:abc"))
}

func TestFindOriginalBySlug_WithoutCache(t *testing.T) {
	f := newFixture(t, false)
	f.db.ExpectQuery(findBySlugRe).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"original_url"}).AddRow("https://example.com/a"))

	original, err := f.repo.FindOriginalBySlug(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", original)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestFindOriginalBySlug_DatabaseError(t *testing.T) {
	f := newFixture(t, false)
	f.db.ExpectQuery(findBySlugRe).WithArgs("abc").WillReturnError(errors.New("connection reset"))

	_, err := f.repo.FindOriginalBySlug(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrDatabaseError)
}

func TestIncrementVisits(t *testing.T) {
	f := newFixture(t, false)
	f.db.ExpectExec(`UPDATE urls SET visits = visits \+ 1`).
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.db.ExpectExec(`UPDATE urls SET visits = visits \+ 1`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.NoError(t, f.repo.IncrementVisits(context.Background(), "abc"))
	assert.ErrorIs(t, f.repo.IncrementVisits(context.Background(), "gone"), ErrURLNotFound)
	assert.NoError(t, f.db.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	f := newFixture(t, false)
	id := uuid.New()
	created := time.Now()
	f.db.ExpectQuery(`INSERT INTO urls`).
		WithArgs("https://example.com/a", "abc", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "visits", "created_at", "updated_at"}).
			AddRow(id, int64(0), created, created))
	f.db.ExpectQuery(`INSERT INTO urls`).
		WithArgs("https://example.com/b", "abc", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "urls_slug_key"})

	url := &model.URL{OriginalURL: "https://example.com/a", Slug: "abc"}
	require.NoError(t, f.repo.Create(context.Background(), url))
	assert.Equal(t, id, url.ID)
	assert.Equal(t, created, url.CreatedAt)

	err := f.repo.Create(context.Background(), &model.URL{OriginalURL: "https://example.com/b", Slug: "abc"})
	assert.ErrorIs(t, err, ErrDuplicateSlug)
	assert.NoError(t, f.db.ExpectationsWereMet())
}
