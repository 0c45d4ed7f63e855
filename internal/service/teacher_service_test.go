package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type stubTeacherRepo struct {
	teachers map[string]*models.Teacher
}

func newStubTeacherRepo() *stubTeacherRepo {
	return &stubTeacherRepo{teachers: map[string]*models.Teacher{}}
}

func (r *stubTeacherRepo) Create(_ context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = "teacher-generated"
	}
	copied := *teacher
	r.teachers[teacher.ID] = &copied
	return nil
}

func (r *stubTeacherRepo) GetByID(_ context.Context, id string) (*models.Teacher, error) {
	teacher, ok := r.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *teacher
	return &copied, nil
}

func (r *stubTeacherRepo) List(_ context.Context, _ models.TeacherFilter) ([]models.Teacher, int, error) {
	out := make([]models.Teacher, 0, len(r.teachers))
	for _, teacher := range r.teachers {
		out = append(out, *teacher)
	}
	return out, len(out), nil
}

func (r *stubTeacherRepo) Update(_ context.Context, teacher *models.Teacher) error {
	copied := *teacher
	r.teachers[teacher.ID] = &copied
	return nil
}

func TestTeacherCreateDefaultsActive(t *testing.T) {
	repo := newStubTeacherRepo()
	svc := NewTeacherService(repo, nil, nil)

	titles := "dr. ir."
	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		Titles:    &titles,
		FirstName: "Hendrik",
		Surname:   "Lorentz",
		Email:     "h.lorentz@example.org",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, teacher.ID)
	assert.True(t, teacher.Active)
	require.NotNil(t, teacher.Titles)
	assert.Equal(t, "dr. ir.", *teacher.Titles)
}

func TestTeacherCreateRequiresEmail(t *testing.T) {
	svc := NewTeacherService(newStubTeacherRepo(), nil, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		FirstName: "Hendrik",
		Surname:   "Lorentz",
		Email:     "not-an-email",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTeacherUpdateDeactivates(t *testing.T) {
	repo := newStubTeacherRepo()
	repo.teachers["t1"] = &models.Teacher{ID: "t1", FirstName: "Hendrik", Surname: "Lorentz", Email: "h.lorentz@example.org", Active: true}
	svc := NewTeacherService(repo, nil, nil)

	inactive := false
	updated, err := svc.Update(context.Background(), "t1", UpdateTeacherRequest{
		FirstName: "Hendrik",
		Surname:   "Lorentz",
		Email:     "h.a.lorentz@example.org",
		Active:    &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "h.a.lorentz@example.org", repo.teachers["t1"].Email)
}

func TestTeacherGetNotFound(t *testing.T) {
	svc := NewTeacherService(newStubTeacherRepo(), nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
