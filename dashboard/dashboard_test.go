package dashboard

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/store"
)

// memCache is an in-process TenantCache that counts hits.
type memCache struct {
	mu      sync.Mutex
	tenants map[string]models.Tenant
	hits    int
}

func (m *memCache) Get(_ context.Context, slug string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[slug]
	if !ok {
		return nil, cache.ErrMiss
	}
	m.hits++
	return &t, nil
}

func (m *memCache) Set(_ context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.Slug] = *t
	return nil
}

func (m *memCache) Invalidate(_ context.Context, slugs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slugs {
		delete(m.tenants, s)
	}
	return nil
}

func newApp(t *testing.T) (*fiber.App, *store.SQL, *memCache) {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQL(ctx, "sqlite", "", filepath.Join(t.TempDir(), "dashboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	mc := &memCache{tenants: map[string]models.Tenant{}}
	svc := &Service{
		Store:  s,
		Cache:  mc,
		Config: models.Config{AuthMode: models.AuthLocal, ProjectID: "demo-project"},
		Logger: logger,
	}
	app := fiber.New(fiber.Config{Views: Engine(false), ErrorHandler: gateway.ErrorHandler(logger)})
	svc.Routes(app)
	svc.RegisterDemo(app)

	require.NoError(t, s.CreateTenant(ctx, &models.Tenant{
		TenantID:       "acme",
		ClientName:     "Acme Corporation",
		Slug:           "acme-inc",
		LiveConfig:     &models.ChatbotConfig{BotName: "Acme Helper", PrimaryColor: "#112233", WelcomeMessage: "Hi from Acme"},
		PendingConfig:  &models.ChatbotConfig{BotName: "Acme Helper v2", PrimaryColor: "#445566"},
		ApprovalStatus: models.StatusPendingAdmin,
	}))
	require.NoError(t, s.CreateTenant(ctx, &models.Tenant{TenantID: "blank", Slug: "blank"}))
	return app, s, mc
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestPages(t *testing.T) {
	app, _, _ := newApp(t)

	code, body := get(t, app, "/")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, `id="login-form"`)
	assert.Contains(t, body, `data-auth-mode="local"`)
	assert.Contains(t, body, "<title>Sign in")

	code, body = get(t, app, "/dashboard")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, `id="tenants"`)
	assert.Contains(t, body, `data-project-id="demo-project"`)
}

func TestStaticAssets(t *testing.T) {
	app, _, _ := newApp(t)
	code, body := get(t, app, "/static/app.css")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "--brand")

	code, _ = get(t, app, "/static/app.js")
	assert.Equal(t, 200, code)
}

func TestDemo(t *testing.T) {
	app, _, _ := newApp(t)
	tests := []struct {
		name     string
		path     string
		code     int
		contains []string
		excludes []string
	}{
		{
			name:     "live",
			path:     "/acme-inc",
			code:     200,
			contains: []string{"Acme Helper", "Acme Corporation", "#112233", "Hi from Acme"},
			excludes: []string{"preview-banner", "Acme Helper v2"},
		},
		{
			name:     "preview",
			path:     "/acme-inc?preview=true",
			code:     200,
			contains: []string{"Acme Helper v2", "#445566", "preview-banner", "Last edited 2024-05-01 12:04 UTC."},
		},
		{
			name:     "fallback",
			path:     "/blank",
			code:     200,
			contains: []string{"Setup Required", "Lumina Demo", "#6B7280"},
		},
		{
			name:     "preview without pending falls back",
			path:     "/blank?preview=true",
			code:     200,
			contains: []string{"Setup Required"},
			excludes: []string{"preview-banner"},
		},
		{
			name:     "missing",
			path:     "/nobody",
			code:     404,
			contains: []string{"Tenant not found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, app, tt.path)
			assert.Equal(t, tt.code, code)
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestDemoReadsThroughCache(t *testing.T) {
	app, s, mc := newApp(t)

	code, _ := get(t, app, "/acme-inc")
	require.Equal(t, 200, code)
	assert.Equal(t, 0, mc.hits)
	assert.Contains(t, mc.tenants, "acme-inc")

	// a cached entry is served even after the row changes underneath
	_, err := s.UpdateTenant(context.Background(), "acme", func(t *models.Tenant) error {
		t.LiveConfig = &models.ChatbotConfig{BotName: "Changed"}
		return nil
	})
	require.NoError(t, err)
	_, body := get(t, app, "/acme-inc")
	assert.Equal(t, 1, mc.hits)
	assert.Contains(t, body, "Acme Helper")

	require.NoError(t, mc.Invalidate(context.Background(), "acme-inc"))
	_, body = get(t, app, "/acme-inc")
	assert.Contains(t, body, "Changed")
}

func TestTimeFormatter(t *testing.T) {
	assert.Equal(t, "", TimeFormatter(time.Time{}))
	ts := time.Date(2024, 5, 1, 13, 4, 0, 0, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-05-01 12:04 UTC", TimeFormatter(ts))
}
