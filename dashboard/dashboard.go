// Package dashboard renders the HTML side of lumina: the login page, the
// control panel and the public demo page of every tenant.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/bradfitz/iter"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/template/html/v2"
	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/apperr"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/store"
)

//go:embed templates
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

const baseLayout = "layouts/base"

// fallbackConfig is shown for tenants that have nothing to show yet.
var fallbackConfig = models.ChatbotConfig{
	BotName:        "Setup Required",
	WelcomeMessage: "This tenant has not been configured yet.",
	PrimaryColor:   "#6B7280",
}

type Service struct {
	Store  store.Store
	Cache  cache.TenantCache
	Config models.Config
	Logger *logrus.Logger
}

// Engine builds the template engine over the embedded templates.
func Engine(debug bool) *html.Engine {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	engine.AddFunc("N", iter.N)
	engine.AddFunc("time", TimeFormatter)
	engine.Reload(debug)
	return engine
}

// TimeFormatter renders timestamps in the control panel.
func TimeFormatter(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// Routes mounts the pages. The demo catch-all is left to RegisterDemo so
// it can be added after every other route.
func (s *Service) Routes(app *fiber.App) {
	if s.Cache == nil {
		s.Cache = cache.Noop{}
	}
	if s.Logger == nil {
		s.Logger = logrus.StandardLogger()
	}
	if s.Config.StaticDir != "" {
		if info, err := os.Stat(s.Config.StaticDir); err == nil && info.IsDir() {
			app.Static("/static", s.Config.StaticDir)
		}
	}
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	app.Use("/static", filesystem.New(filesystem.Config{Root: http.FS(sub)}))

	app.Get("/", s.LoginPage)
	app.Get("/dashboard", s.DashboardPage)
}

// RegisterDemo adds GET /:slug. It must be the last route registered.
func (s *Service) RegisterDemo(app *fiber.App) {
	app.Get("/:slug", s.Demo)
}

func (s *Service) pageData() fiber.Map {
	return fiber.Map{
		"AuthMode":           s.Config.AuthMode,
		"FirebaseAPIKey":     s.Config.FirebaseAPIKey,
		"FirebaseAuthDomain": s.Config.FirebaseAuthDomain,
		"ProjectID":          s.Config.ProjectID,
	}
}

func (s *Service) LoginPage(c *fiber.Ctx) error {
	data := s.pageData()
	data["Title"] = "Sign in"
	return c.Render("login", data, baseLayout)
}

func (s *Service) DashboardPage(c *fiber.Ctx) error {
	data := s.pageData()
	data["Title"] = "Control Panel"
	return c.Render("dashboard", data, baseLayout)
}

// tenantBySlug reads through the cache.
func (s *Service) tenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	if t, err := s.Cache.Get(ctx, slug); err == nil {
		return t, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.Logger.WithFields(logrus.Fields{"slug": slug, "error": err.Error()}).Warn("cache read failed")
	}
	t, err := s.Store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Set(ctx, t); err != nil {
		s.Logger.WithFields(logrus.Fields{"slug": slug, "error": err.Error()}).Warn("cache write failed")
	}
	return t, nil
}

// Demo renders a tenant's public page from its live configuration, or
// from the pending one with ?preview=true.
func (s *Service) Demo(c *fiber.Ctx) error {
	slug := c.Params("slug")
	t, err := s.tenantBySlug(c.UserContext(), slug)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.With(apperr.ErrNotFound, "Tenant not found")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}

	cfg := t.LiveConfig
	preview := false
	if c.QueryBool("preview") && t.PendingConfig != nil {
		cfg = t.PendingConfig
		preview = true
	}
	view := fallbackConfig
	if cfg != nil {
		view = *cfg
	}
	clientName := t.ClientName
	if clientName == "" {
		clientName = "Lumina Demo"
	}
	return c.Render("demo_base", fiber.Map{
		"ClientName": clientName,
		"Config":     view,
		"IsPreview":  preview,
		"ModifiedAt": t.LastModifiedAt,
		"Slug":       t.Slug,
	})
}
