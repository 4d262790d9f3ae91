package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
)

type testEnv struct {
	app    *fiber.App
	store  *store.SQL
	tokens *JWTAuth
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.OpenSQL(context.Background(), "sqlite", "", filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tokens, err := NewJWTAuth("test-secret", time.Hour)
	require.NoError(t, err)

	logger := quietLogger()
	auth := NewAuth(tokens, s, rbac.Contributor, logger)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Use(RequestID())
	app.Use(Instrumentation(prometheus.NewRegistry()))
	app.Use(RequestLogger(logger, LogSamplingConfig{}))

	api := app.Group("/api/v1/auth")
	api.Post("/login", NewRateLimiter(1, 2, logger).Handler(), Login(s, tokens))
	api.Get("/me", auth.CurrentUser(), auth.Me)
	app.Get("/publish", auth.CurrentUser(), Require(rbac.PublishLive, "You cannot publish."), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	return &testEnv{app: app, store: s, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, uid, email string) string {
	t.Helper()
	tok, err := e.tokens.GenerateJWT(uid, email)
	require.NoError(t, err)
	return tok
}

func decode(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func TestCurrentUserRejectsMissingAndBadTokens(t *testing.T) {
	env := newTestEnv(t)
	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"garbage":    "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res, err := env.app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
			assert.Equal(t, "Bearer", res.Header.Get("WWW-Authenticate"))
			assert.Equal(t, "Invalid credentials", decode(t, res)["message"])
		})
	}
}

func TestCurrentUserWrongKey(t *testing.T) {
	env := newTestEnv(t)
	other, err := NewJWTAuth("another-secret", time.Hour)
	require.NoError(t, err)
	tok, err := other.GenerateJWT("u1", "a@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	res, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestMeDefaultsToContributor(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "ghost", "ghost@example.com"))
	res, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get(RequestIDHeader))

	body := decode(t, res)
	assert.Equal(t, "ghost", body["uid"])
	assert.Equal(t, "contributor", body["role"])
	assert.ElementsMatch(t, []any{"view_dashboard", "edit_draft", "submit_review"}, body["actions"])
}

func TestMeUsesStoredRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.SaveUser(ctx, &models.User{UID: "boss", Email: "boss@example.com", Role: rbac.SuperAdmin, IsActive: true}))
	require.NoError(t, env.store.SaveUser(ctx, &models.User{UID: "gone", Email: "gone@example.com", Role: rbac.Admin, IsActive: false}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "boss", ""))
	res, err := env.app.Test(req)
	require.NoError(t, err)
	body := decode(t, res)
	assert.Equal(t, "super_admin", body["role"])
	assert.Equal(t, "boss@example.com", body["email"])
	assert.Len(t, body["actions"], 7)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "gone", "gone@example.com"))
	res, err = env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "Account disabled", decode(t, res)["message"])
}

func TestRequire(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/publish", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "c1", "c@example.com"))
	res, err := env.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, "forbidden", body["code"])
	assert.Equal(t, "You cannot publish.", body["message"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	require.NoError(t, env.store.SaveUser(context.Background(), &models.User{
		UID: "u1", Email: "user@example.com", Role: rbac.Admin, IsActive: true, PasswordHash: hash,
	}))

	login := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		res, err := env.app.Test(req)
		require.NoError(t, err)
		return res
	}

	res := login(`{"email":"USER@example.com","password":"s3cret!"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	tok, _ := decode(t, res)["token"].(string)
	claims, err := env.tokens.VerifyJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)

	res = login(`{"email":"user@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// burst of two is spent
	res = login(`{"email":"user@example.com","password":"s3cret!"}`)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
}

func TestErrorHandlerFiberError(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, "i'm_a_teapot", body["code"])
	assert.Equal(t, "short and stout", body["message"])
}

func TestErrorHandlerStoreErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(quietLogger())})
	app.Get("/missing", func(*fiber.Ctx) error { return store.ErrNotFound })
	app.Get("/dup", func(*fiber.Ctx) error { return store.ErrDuplicateSlug })

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode(t, res)["code"])

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/dup", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	body := decode(t, res)
	assert.Equal(t, "conflict", body["code"])
	assert.Equal(t, "store: conflict: slug already in use", body["message"])
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		cfg    AdminAuthConfig
		header map[string]string
		want   int
	}{
		{"open when unconfigured", AdminAuthConfig{}, nil, http.StatusOK},
		{"debug bypass", AdminAuthConfig{Key: "k", Debug: true}, nil, http.StatusOK},
		{"key ok", AdminAuthConfig{Key: "k"}, map[string]string{"X-Admin-Key": "k"}, http.StatusOK},
		{"key wrong", AdminAuthConfig{Key: "k"}, map[string]string{"X-Admin-Key": "nope"}, http.StatusUnauthorized},
		{"basic ok", AdminAuthConfig{User: "ops", Password: "pw"}, map[string]string{"Authorization": "Basic b3BzOnB3"}, http.StatusOK},
		{"basic wrong", AdminAuthConfig{User: "ops", Password: "pw"}, map[string]string{"Authorization": "Basic b3BzOng="}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
			app.Get("/metrics", RequireAdmin(tt.cfg), func(c *fiber.Ctx) error { return c.SendString("ok") })
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			res, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.StatusCode)
		})
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	j := &JWTAuth{Key: []byte("k"), TTL: -time.Minute}
	tok, err := j.GenerateJWT("u1", "")
	require.NoError(t, err)
	_, err = j.VerifyJWT(tok)
	assert.Error(t, err)

	_, err = NewJWTAuth("", time.Hour)
	assert.Error(t, err)
}

func TestLocalIdentities(t *testing.T) {
	uid, hash, err := LocalIdentities{}.CreateUser(context.Background(), "a@example.com", "pa55word")
	require.NoError(t, err)
	assert.NotEmpty(t, uid)
	assert.True(t, CheckPassword(hash, "pa55word"))
	assert.False(t, CheckPassword(hash, "other"))
	assert.False(t, CheckPassword("", "pa55word"))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer   abc "))
	assert.Equal(t, "", bearerToken("Bearer"))
	assert.Equal(t, "", bearerToken("Token abc"))
}
