package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type stubUserRepo struct {
	users   map[string]*models.User
	byEmail map[string]*models.User
	deleted []string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users:   map[string]*models.User{},
		byEmail: map[string]*models.User{},
	}
}

func (r *stubUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, *user)
	}
	return out, len(out), nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-generated"
	}
	copied := *user
	r.users[user.ID] = &copied
	r.byEmail[user.Email] = &copied
	return nil
}

func (r *stubUserRepo) Update(_ context.Context, user *models.User) error {
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *stubUserRepo) Delete(_ context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func TestUserCreateHashesPassword(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewUserService(repo, nil, nil)

	tid := "t1"
	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:     "docent@example.org",
		Password:  "geheim123",
		FullName:  "E. Noether",
		Role:      models.RoleTeacher,
		TeacherID: &tid,
	})
	require.NoError(t, err)

	assert.True(t, user.Active)
	assert.NotEqual(t, "geheim123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("geheim123")))
	require.NotNil(t, user.TeacherID)
	assert.Equal(t, "t1", *user.TeacherID)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	repo.byEmail["docent@example.org"] = &models.User{ID: "u1", Email: "docent@example.org"}
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "docent@example.org",
		Password: "geheim123",
		FullName: "E. Noether",
		Role:     models.RoleTeacher,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(newStubUserRepo(), nil, nil)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "docent@example.org",
		Password: "geheim123",
		FullName: "E. Noether",
		Role:     models.UserRole("SUPERUSER"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateTogglesActive(t *testing.T) {
	repo := newStubUserRepo()
	repo.users["u1"] = &models.User{ID: "u1", Email: "docent@example.org", FullName: "E. Noether", Role: models.RoleTeacher, Active: true}
	svc := NewUserService(repo, nil, nil)

	inactive := false
	updated, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "Emmy Noether",
		Role:     models.RoleBoecie,
		Active:   &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Emmy Noether", updated.FullName)
	assert.Equal(t, models.RoleBoecie, updated.Role)
	assert.False(t, updated.Active)
	assert.False(t, repo.users["u1"].Active)
}

func TestUserDeleteUnknown(t *testing.T) {
	repo := newStubUserRepo()
	svc := NewUserService(repo, nil, nil)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)

	repo.users["u1"] = &models.User{ID: "u1"}
	require.NoError(t, svc.Delete(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, repo.deleted)
}

func TestUserListDefaultsPagination(t *testing.T) {
	repo := newStubUserRepo()
	repo.users["u1"] = &models.User{ID: "u1"}
	svc := NewUserService(repo, nil, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
