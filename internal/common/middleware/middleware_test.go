package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"healthtrack-backend/internal/common/middleware"
	"healthtrack-backend/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.Config{
		Secret: "0123456789abcdef0123456789abcdef",
		TTL:    time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestRequireSession(t *testing.T) {
	sessions := newSessions(t)
	router := gin.New()
	router.GET("/me", middleware.RequireSession(sessions), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.CurrentSession(c).UserID)
	})

	t.Run("no cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Error.Code)
	})

	t.Run("garbage cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: sessions.CookieName(), Value: "not-a-token"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid cookie", func(t *testing.T) {
		issued := httptest.NewRecorder()
		_, err := sessions.Issue(issued, session.Principal{UserID: "user-1"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		for _, cookie := range issued.Result().Cookies() {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-1", rec.Body.String())
	})
}

func TestLoadSessionIsOptional(t *testing.T) {
	sessions := newSessions(t)
	router := gin.New()
	router.GET("/", middleware.LoadSession(sessions), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": middleware.CurrentSession(c) != nil})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	limiter := middleware.NewRateLimiter(60)
	router := gin.New()
	router.Use(limiter.Handler())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// burst is a tenth of the per-minute budget
	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code, "request %d", i)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.Equal(t, "RATE_LIMITED", decodeError(t, rec).Error.Code)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "203.0.113.7:4000"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, other)
	require.Equal(t, http.StatusNoContent, rec.Code, "limits are per client")
}

func TestRateLimiterByPhone(t *testing.T) {
	limiter := middleware.NewRateLimiter(6,
		middleware.WithKeyFunc(middleware.PhoneKey),
		middleware.WithMessage("too many code requests for this phone"),
	)
	router := gin.New()
	router.POST("/otp", limiter.Handler(), func(c *gin.Context) {
		var body struct {
			Phone string `json:"phone" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, body.Phone)
	})
	post := func(body, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/otp", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"phone":"0912345678"}`, "203.0.113.1:1000")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0912345678", rec.Body.String(), "handler still sees the body")

	// same subscriber written differently, from another address
	rec = post(`{"phone":"+84 912 345 678"}`, "203.0.113.2:1000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "too many code requests for this phone", decodeError(t, rec).Error.Message)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = post(`{"phone":"0987654321"}`, "203.0.113.1:1000")
	require.Equal(t, http.StatusOK, rec.Code, "other phones have their own bucket")

	// bodies without a usable phone are bucketed by client IP
	rec = post(`not json`, "198.51.100.9:1000")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = post(`{"phone":"12"}`, "198.51.100.9:1000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := middleware.NewRateLimiter(0)
	require.Nil(t, limiter)

	router := gin.New()
	router.Use(limiter.Handler())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	router := gin.New()
	router.Use(middleware.Timeout(time.Second))
	router.GET("/", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(middleware.RequestLogger(zap.New(core)))
	router.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.RequestID(c))
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
		require.Equal(t, "req-123", rec.Body.String())
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

		require.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	})

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "/items/:id", fields["path"])
	require.EqualValues(t, http.StatusOK, fields["status"])
}

func TestSetupCORS(t *testing.T) {
	router := gin.New()
	router.Use(middleware.SetupCORS([]string{"https://app.example.vn"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.vn")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "https://app.example.vn", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
