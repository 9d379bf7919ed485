package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"healthtrack-backend/internal/apps/user/handler"
	"healthtrack-backend/internal/apps/user/models"
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/middleware"
	"healthtrack-backend/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubUsers struct {
	user *models.User
}

func (s *stubUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, apperror.New(apperror.CodeNotFound, "user not found")
	}
	return s.user, nil
}

func (s *stubUsers) UpdateProfile(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.DisplayName = req.DisplayName
	return user, nil
}

func (s *stubUsers) FindOrCreateByPhone(context.Context, string) (*models.User, bool, error) {
	return nil, false, nil
}

func (s *stubUsers) Register(context.Context, string, string, *string) (*models.User, error) {
	return nil, nil
}

func (s *stubUsers) Authenticate(context.Context, string, string) (*models.User, error) {
	return nil, nil
}

func (s *stubUsers) Delete(context.Context, uuid.UUID) error { return nil }

func setup(t *testing.T) (*gin.Engine, *http.Cookie, *stubUsers) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions, err := session.NewManager(session.Config{Secret: "0123456789abcdef0123456789abcdef", TTL: time.Hour})
	require.NoError(t, err)

	phone := "+84912345678"
	users := &stubUsers{user: &models.User{ID: uuid.New(), Phone: &phone}}

	router := gin.New()
	handler.RegisterUserRoutes(router.Group("/api/v1"), handler.NewUserHandler(users, zap.NewNop()), middleware.RequireSession(sessions))

	rec := httptest.NewRecorder()
	_, err = sessions.Issue(rec, session.Principal{UserID: users.user.ID.String(), Phone: phone})
	require.NoError(t, err)
	return router, rec.Result().Cookies()[0], users
}

func TestGetMe(t *testing.T) {
	router, cookie, _ := setup(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"phone":"+84912345678"`)
	require.NotContains(t, rec.Body.String(), "password_hash")
}

func TestGetMeDeletedUser(t *testing.T) {
	router, cookie, users := setup(t)
	users.user = nil

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMe(t *testing.T) {
	router, cookie, _ := setup(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/users/me", strings.NewReader(`{"display_name":"Minh"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"display_name":"Minh"`)
}
