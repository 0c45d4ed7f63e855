package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type stubStudyRepo struct {
	studies       map[string]*models.Study
	bySlug        map[string]*models.Study
	progress      []models.StudyProgress
	progressCalls int
}

func newStubStudyRepo() *stubStudyRepo {
	return &stubStudyRepo{
		studies: map[string]*models.Study{},
		bySlug:  map[string]*models.Study{},
	}
}

func (r *stubStudyRepo) List(_ context.Context) ([]models.Study, error) {
	out := make([]models.Study, 0, len(r.studies))
	for _, study := range r.studies {
		out = append(out, *study)
	}
	return out, nil
}

func (r *stubStudyRepo) GetByID(_ context.Context, id string) (*models.Study, error) {
	study, ok := r.studies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return study, nil
}

func (r *stubStudyRepo) GetBySlug(_ context.Context, slug string) (*models.Study, error) {
	study, ok := r.bySlug[slug]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return study, nil
}

func (r *stubStudyRepo) Create(_ context.Context, study *models.Study) error {
	if study.ID == "" {
		study.ID = "study-generated"
	}
	copied := *study
	r.studies[study.ID] = &copied
	r.bySlug[study.Slug] = &copied
	return nil
}

func (r *stubStudyRepo) Progress(_ context.Context, _ models.ReportingWindow) ([]models.StudyProgress, error) {
	r.progressCalls++
	return r.progress, nil
}

// memoryCache is an in-process CacheRepository used to exercise the cache
// path without redis.
type memoryCache struct {
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = payload
	return nil
}

func (c *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func newStudyServiceForTest(repo *stubStudyRepo, cache *CacheService) *StudyService {
	return NewStudyService(repo, cache, time.Minute, nil, nil)
}

func TestStudyCreateRejectsUnknownType(t *testing.T) {
	svc := newStudyServiceForTest(newStubStudyRepo(), nil)

	_, err := svc.Create(context.Background(), CreateStudyRequest{
		Name: "Technische Natuurkunde",
		Slug: "tn",
		Type: models.StudyType("PHD"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudyCreateAndLookupBySlug(t *testing.T) {
	repo := newStubStudyRepo()
	svc := newStudyServiceForTest(repo, nil)

	created, err := svc.Create(context.Background(), CreateStudyRequest{
		Name: "Technische Natuurkunde",
		Slug: "tn",
		Type: models.StudyBachelor,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	found, err := svc.GetBySlug(context.Background(), "tn")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.GetBySlug(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudyProgressRejectsUnknownPeriod(t *testing.T) {
	svc := newStudyServiceForTest(newStubStudyRepo(), nil)

	_, err := svc.Progress(context.Background(), models.ReportingWindow{Year: 2026, Period: "Q9"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudyProgressCachesPerWindow(t *testing.T) {
	repo := newStubStudyRepo()
	repo.progress = []models.StudyProgress{
		{StudyID: "s1", Name: "TN", Type: models.StudyBachelor, CoursesTotal: 12, UpdatedTeacher: 4, UpdatedAssociations: 7},
	}
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := newStudyServiceForTest(repo, cache)

	window := models.ReportingWindow{Year: 2026, Period: models.PeriodQ1}

	first, err := svc.Progress(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, repo.progressCalls)

	second, err := svc.Progress(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.progressCalls)

	// A different window misses the cache.
	_, err = svc.Progress(context.Background(), models.ReportingWindow{Year: 2026, Period: models.PeriodQ2})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.progressCalls)

	cache.InvalidateProgress(context.Background())
	_, err = svc.Progress(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.progressCalls)
}

func TestStudyProgressWorksWithoutCache(t *testing.T) {
	repo := newStubStudyRepo()
	var cache *CacheService
	svc := newStudyServiceForTest(repo, cache)

	_, err := svc.Progress(context.Background(), models.ReportingWindow{Year: 2026, Period: models.PeriodQ1})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.progressCalls)
}
