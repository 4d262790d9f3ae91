package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/tplumina/lumina/admin"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/assets"
	"github.com/tplumina/lumina/audit"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/dashboard"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/notify"
	"github.com/tplumina/lumina/rbac"
	"github.com/tplumina/lumina/store"
	"github.com/tplumina/lumina/workflow"
	"google.golang.org/api/option"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/app/config.yaml"

type configFile struct {
	Lumina models.Config `yaml:"lumina"`
}

// loadConfig reads the `lumina:` key of the first config file found, then
// applies .env and environment overrides and fills defaults. A missing
// config file is fine; the environment alone is enough.
func loadConfig(paths ...string) (models.Config, error) {
	var cfg models.Config
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path := firstExistingPath(paths...); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		var doc configFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cfg, fmt.Errorf("parse config yaml: %w", err)
		}
		cfg = doc.Lumina
		logrusLogger.WithField("path", path).Debug("loaded config file")
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}
	cfg.Defaults()
	return cfg, nil
}

// services is everything GetMainEngine mounts.
type services struct {
	cfg       models.Config
	logger    *logrus.Logger
	store     store.Store
	cache     cache.TenantCache
	tokens    *gateway.JWTAuth
	auth      *gateway.Auth
	notify    *notify.Service
	admin     *admin.Service
	dashboard *dashboard.Service
	limiter   *gateway.RateLimiter
	closers   []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Warn("close failed")
		}
	}
}

func needsFirebase(cfg models.Config) bool {
	return cfg.StoreDriver == models.StoreFirestore || cfg.AuthMode == models.AuthFirebase || cfg.PushEnabled
}

func newFirebaseApp(ctx context.Context, cfg models.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
}

// openStore opens the configured backend. SQL stores are migrated on open.
func openStore(ctx context.Context, cfg models.Config, app *firebase.App) (store.Store, error) {
	if cfg.StoreDriver == models.StoreFirestore {
		if app == nil {
			return nil, errors.New("firestore store requires firebase")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("firestore: %w", err)
		}
		return store.NewFirestore(client), nil
	}
	return store.OpenSQL(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.DatabasePath)
}

func openCache(ctx context.Context, cfg models.Config, logger *logrus.Logger) cache.TenantCache {
	if cfg.RedisAddr == "" {
		return cache.Noop{}
	}
	r := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL())
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		logger.WithFields(logrus.Fields{"addr": cfg.RedisAddr, "error": err.Error()}).Warn("redis unavailable, tenant cache disabled")
		_ = r.Close()
		return cache.Noop{}
	}
	return r
}

func openUploader(ctx context.Context, cfg models.Config, logger *logrus.Logger) (assets.Uploader, func() error, error) {
	switch {
	case cfg.StorageBucket != "":
		g, err := assets.NewGCS(ctx, cfg.StorageBucket, cfg.CredentialsFile, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		return g, g.Close, nil
	case cfg.StaticDir != "":
		return assets.NewLocalDisk(cfg.StaticDir), nil, nil
	default:
		return assets.Unconfigured{}, nil, nil
	}
}

// buildServices wires the application from cfg.
func buildServices(ctx context.Context, cfg models.Config, logger *logrus.Logger) (*services, error) {
	svc := &services{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	defaultRole, err := rbac.ParseRole(cfg.DefaultRole)
	if err != nil {
		return nil, fmt.Errorf("default_role: %w", err)
	}

	var fb *firebase.App
	if needsFirebase(cfg) {
		fb, err = newFirebaseApp(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
	}

	st, err := openStore(ctx, cfg, fb)
	if err != nil {
		return nil, err
	}
	svc.store = st
	svc.closers = append(svc.closers, st.Close)

	svc.cache = openCache(ctx, cfg, logger)
	if r, isRedis := svc.cache.(*cache.Redis); isRedis {
		svc.closers = append(svc.closers, r.Close)
	}

	uploader, closeUploader, err := openUploader(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closeUploader != nil {
		svc.closers = append(svc.closers, closeUploader)
	}

	var (
		verifier   gateway.Verifier
		identities gateway.IdentityProvider
	)
	switch cfg.AuthMode {
	case models.AuthFirebase:
		client, err := fb.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("firebase auth: %w", err)
		}
		verifier = &gateway.FirebaseVerifier{Client: client}
		identities = &gateway.FirebaseIdentities{Client: client}
	case models.AuthLocal:
		secret := cfg.JWTSecret
		if secret == "" && cfg.IsDebug {
			secret = uuid.NewString()
			logger.Warn("jwt_secret not set, using a random secret; tokens will not survive a restart")
		}
		tokens, err := gateway.NewJWTAuth(secret, cfg.JWTTTL())
		if err != nil {
			return nil, err
		}
		svc.tokens = tokens
		svc.limiter = gateway.NewRateLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst, logger)
		verifier = tokens
		identities = gateway.LocalIdentities{}
	default:
		return nil, fmt.Errorf("unknown auth_mode %q", cfg.AuthMode)
	}

	var pusher notify.Pusher
	if cfg.PushEnabled {
		fcm, err := notify.NewFCM(ctx, fb)
		if err != nil {
			return nil, fmt.Errorf("messaging: %w", err)
		}
		pusher = fcm
	}

	svc.auth = gateway.NewAuth(verifier, st, defaultRole, logger)
	svc.notify = notify.New(st, pusher, logger)
	aud := audit.New(st, logger)
	svc.admin = &admin.Service{
		Store:      st,
		Workflow:   workflow.New(st, svc.notify, aud, svc.cache, logger),
		Identities: identities,
		Audit:      aud,
		Uploader:   uploader,
		Cache:      svc.cache,
		Config:     cfg,
		Logger:     logger,
	}
	svc.dashboard = &dashboard.Service{Store: st, Cache: svc.cache, Config: cfg, Logger: logger}

	ok = true
	return svc, nil
}

// GetMainEngine builds the fiber application with every route mounted.
func GetMainEngine(svc *services) *fiber.App {
	cfg := svc.cfg
	route := fiber.New(fiber.Config{
		AppName:      "lumina",
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		Views:        dashboard.Engine(cfg.IsDebug),
		ErrorHandler: gateway.ErrorHandler(svc.logger),
	})
	route.Use(gateway.RequestID())
	route.Use(gateway.Tracing())
	route.Use(gateway.RequestLogger(svc.logger, logSampling))
	route.Use(gateway.Instrumentation(nil))
	route.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(splitOrigins(cfg.CorsOrigins), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Key, X-Request-ID",
	}))

	route.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok", "project": cfg.ProjectID})
	})
	route.Get("/metrics",
		gateway.RequireAdmin(gateway.AdminAuthConfig{
			Key:      cfg.AdminKey,
			User:     cfg.AdminUser,
			Password: cfg.AdminPassword,
			Debug:    cfg.IsDebug,
		}),
		adaptor.HTTPHandler(promhttp.Handler()))

	api := route.Group("/api/v1")
	authGroup := api.Group("/auth")
	if svc.tokens != nil {
		authGroup.Post("/login", svc.limiter.Handler(), gateway.Login(svc.store, svc.tokens))
	}
	authGroup.Get("/me", svc.auth.CurrentUser(), svc.auth.Me)

	svc.admin.Routes(api.Group("/admin", svc.auth.CurrentUser()))
	svc.notify.Routes(api.Group("/notifications", svc.auth.CurrentUser()))

	svc.dashboard.Routes(route)
	// catch-all for demo pages, keep last
	svc.dashboard.RegisterDemo(route)
	return route
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
