package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"smarthub/internal/domain/model"
	repo "smarthub/internal/repository"
	"smarthub/internal/usecase"
	"smarthub/internal/validator"
)

const testSecret = "test-secret"

type authFixture struct {
	tx    *TxManagerMock
	users *UserRepoMock
	audit *AuditRepoMock
	cache *UserCacheMock
	uc    *usecase.AuthUsecase
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		tx:    new(TxManagerMock),
		users: new(UserRepoMock),
		audit: new(AuditRepoMock),
		cache: new(UserCacheMock),
	}
	f.tx.Repos = &TxReposMock{users: f.users, audit: f.audit}
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.uc = usecase.NewAuthUsecase(testSecret, time.Hour, f.users, f.tx, f.cache, validator.NewAuthValidator(f.users), zap.NewNop())
	return f
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// =====================
// Register
// =====================

func TestAuthUsecase_Register(t *testing.T) {
	f := newAuthFixture()

	f.users.On("FindByEmail", mock.Anything, "jane@example.com").Return(nil, nil)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "jane@example.com" && u.Role == model.RoleUser && u.PasswordHash != "password123"
	})).Return(nil)

	res, err := f.uc.Register(context.Background(), usecase.AuthRegisterRequest{Email: "Jane@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "USER", res.User.Role)
}

func TestAuthUsecase_Register_EmailTaken(t *testing.T) {
	f := newAuthFixture()

	f.users.On("FindByEmail", mock.Anything, "jane@example.com").Return(&model.User{ID: 1}, nil)

	_, err := f.uc.Register(context.Background(), usecase.AuthRegisterRequest{Email: "jane@example.com", Password: "password123"})
	assert.ErrorIs(t, err, usecase.ErrConflict)
}

func TestAuthUsecase_Register_ShortPassword(t *testing.T) {
	f := newAuthFixture()

	_, err := f.uc.Register(context.Background(), usecase.AuthRegisterRequest{Email: "jane@example.com", Password: "short"})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

// =====================
// Login
// =====================

func TestAuthUsecase_Login_IssuesTokenWithVersion(t *testing.T) {
	f := newAuthFixture()

	u := &model.User{ID: 5, Email: "jane@example.com", PasswordHash: hashed(t, "password123"), Role: model.RoleAdmin, TokenVersion: 3, IsActive: true}
	f.users.On("FindByEmail", mock.Anything, "jane@example.com").Return(u, nil)
	f.users.On("TouchLastLogin", mock.Anything, int64(5), mock.AnythingOfType("time.Time")).Return(nil)

	res, err := f.uc.Login(context.Background(), usecase.AuthLoginRequest{Email: "jane@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, 3600, res.Token.ExpiresIn)

	tok, err := jwt.Parse(res.Token.AccessToken, func(*jwt.Token) (interface{}, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(5), claims["sub"])
	assert.Equal(t, "ADMIN", claims["role"])
	assert.Equal(t, float64(3), claims["tv"])
}

func TestAuthUsecase_Login_WrongPassword(t *testing.T) {
	f := newAuthFixture()

	u := &model.User{ID: 5, Email: "jane@example.com", PasswordHash: hashed(t, "password123"), IsActive: true}
	f.users.On("FindByEmail", mock.Anything, "jane@example.com").Return(u, nil)

	_, err := f.uc.Login(context.Background(), usecase.AuthLoginRequest{Email: "jane@example.com", Password: "nope-nope"})
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestAuthUsecase_Login_Inactive(t *testing.T) {
	f := newAuthFixture()

	u := &model.User{ID: 5, Email: "jane@example.com", PasswordHash: hashed(t, "password123"), IsActive: false}
	f.users.On("FindByEmail", mock.Anything, "jane@example.com").Return(u, nil)

	_, err := f.uc.Login(context.Background(), usecase.AuthLoginRequest{Email: "jane@example.com", Password: "password123"})
	assert.ErrorIs(t, err, usecase.ErrForbidden)
}

// =====================
// ForceLogout
// =====================

func TestAuthUsecase_ForceLogout(t *testing.T) {
	f := newAuthFixture()

	f.users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5, TokenVersion: 2}, nil)
	f.users.On("IncrementTokenVersion", mock.Anything, int64(5)).Return(3, nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionForceLogout &&
			l.ResourceType == model.AuditResourceUser &&
			l.ResourceID == "5" &&
			string(l.AfterJSON) == `{"token_version":3}`
	})).Return(nil)
	f.cache.On("Invalidate", mock.Anything, int64(5)).Return(nil)

	res, err := f.uc.ForceLogout(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewTokenVersion)

	f.audit.AssertExpectations(t)
	f.cache.AssertExpectations(t)
}

func TestAuthUsecase_ForceLogout_UnknownUser(t *testing.T) {
	f := newAuthFixture()

	f.users.On("FindByID", mock.Anything, int64(5)).Return(nil, nil)

	_, err := f.uc.ForceLogout(context.Background(), 1, 5)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
	f.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestAuthUsecase_ForceLogout_CacheErrorIsIgnored(t *testing.T) {
	f := newAuthFixture()

	f.users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5}, nil)
	f.users.On("IncrementTokenVersion", mock.Anything, int64(5)).Return(1, nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.cache.On("Invalidate", mock.Anything, int64(5)).Return(errors.New("redis down"))

	_, err := f.uc.ForceLogout(context.Background(), 1, 5)
	require.NoError(t, err)
}

func TestAuthUsecase_ForceLogout_RepoNotFound(t *testing.T) {
	f := newAuthFixture()

	f.users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5}, nil)
	f.users.On("IncrementTokenVersion", mock.Anything, int64(5)).Return(0, repo.ErrNotFound)

	_, err := f.uc.ForceLogout(context.Background(), 1, 5)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}
