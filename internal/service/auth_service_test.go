package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/studver/matsel-api/internal/models"
	appErrors "github.com/studver/matsel-api/pkg/errors"
)

type stubAuthRepo struct {
	users         map[string]*models.User
	byEmail       map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revokedIDs    []string
	revokedUsers  []string
	audits        []*models.AuditLog
	passwords     map[string]string
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{
		users:         map[string]*models.User{},
		byEmail:       map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
		passwords:     map[string]string{},
	}
}

func (r *stubAuthRepo) addUser(user *models.User) {
	r.users[user.ID] = user
	r.byEmail[user.Email] = user
}

func (r *stubAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := r.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (r *stubAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (r *stubAuthRepo) UpdateLastLogin(_ context.Context, id string, ts time.Time) error {
	if user, ok := r.users[id]; ok {
		user.LastLogin = &ts
	}
	return nil
}

func (r *stubAuthRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	r.passwords[id] = passwordHash
	return nil
}

func (r *stubAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	r.revokedUsers = append(r.revokedUsers, userID)
	for _, token := range r.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (r *stubAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	copied := *token
	r.refreshTokens[token.Token] = &copied
	return nil
}

func (r *stubAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := r.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (r *stubAuthRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	r.revokedIDs = append(r.revokedIDs, id)
	for _, token := range r.refreshTokens {
		if token.ID == id {
			token.Revoked = true
		}
	}
	return nil
}

func (r *stubAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "matsel-api-test",
	}
}

func seedTeacherUser(t *testing.T, repo *stubAuthRepo) *models.User {
	t.Helper()
	teacherID := "t1"
	user := &models.User{
		ID:           "u1",
		Email:        "docent@example.org",
		PasswordHash: hashPassword(t, "geheim123"),
		FullName:     "E. Noether",
		Role:         models.RoleTeacher,
		TeacherID:    &teacherID,
		Active:       true,
	}
	repo.addUser(user)
	return user
}

func TestLoginIssuesTokenPair(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "geheim123",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, user.ID, resp.User.ID)
	require.NotNil(t, resp.User.TeacherID)
	assert.Equal(t, "t1", *resp.User.TeacherID)

	stored, ok := repo.refreshTokens[resp.RefreshToken]
	require.True(t, ok)
	assert.Equal(t, user.ID, stored.UserID)
	assert.False(t, stored.Revoked)

	require.NotNil(t, user.LastLogin)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionLogin, repo.audits[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "verkeerd",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmailIsIndistinguishable(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.org",
		Password: "whatever",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	user.Active = false
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "geheim123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginSingleSessionRevokesOlderTokens(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	repo.refreshTokens["old"] = &models.RefreshToken{ID: "rt-old", UserID: user.ID, Token: "old"}

	cfg := testAuthConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, nil, nil, cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "geheim123",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, repo.revokedUsers)
	assert.True(t, repo.refreshTokens["old"].Revoked)
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	repo.refreshTokens["current"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    user.ID,
		Token:     "current",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "current"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "current", resp.RefreshToken)
	assert.Contains(t, repo.revokedIDs, "rt-1")
	_, ok := repo.refreshTokens[resp.RefreshToken]
	assert.True(t, ok)
}

func TestRefreshTokenExpired(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    user.ID,
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenUnknown(t *testing.T) {
	repo := newStubAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "geheim123",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	require.NotNil(t, claims.TeacherID)
	assert.Equal(t, "t1", *claims.TeacherID)
	assert.Equal(t, "matsel-api-test", claims.Issuer)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "geheim123",
	})
	require.NoError(t, err)

	otherCfg := testAuthConfig()
	otherCfg.AccessTokenSecret = "another-secret"
	other := NewAuthService(repo, nil, nil, otherCfg)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordWrongOld(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "verkeerd",
		NewPassword: "nieuw-wachtwoord",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "geheim123",
		NewPassword: "nieuw-wachtwoord",
	})
	require.NoError(t, err)

	newHash, ok := repo.passwords[user.ID]
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("nieuw-wachtwoord")))
	assert.Equal(t, []string{user.ID}, repo.revokedUsers)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := newStubAuthRepo()
	user := seedTeacherUser(t, repo)
	repo.refreshTokens["current"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    user.ID,
		Token:     "current",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	err := svc.Logout(context.Background(), "current", "someone-else", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "current", user.ID, models.LoginRequest{}))
	assert.True(t, repo.refreshTokens["current"].Revoked)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionLogout, repo.audits[0].Action)
}
