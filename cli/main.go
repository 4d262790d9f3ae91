// Command lumina serves the Lumina platform. The seed and migrate
// subcommands prepare a fresh installation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	gateway "github.com/tplumina/lumina/apigateway"
	"github.com/tplumina/lumina/cache"
	"github.com/tplumina/lumina/models"
	"github.com/tplumina/lumina/notify"
	"github.com/tplumina/lumina/store"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var logrusLogger = logrus.New()
var logSampling gateway.LogSamplingConfig

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		logrusLogger.WithError(err).Fatal("lumina exited")
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := loadConfig(defaultConfigPath, "./config.yaml")
	if err != nil {
		return err
	}
	logSampling = configureLogger(logrusLogger, cfg)

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serve(ctx, cfg)
	case "seed":
		return seedCommand(ctx, cfg, args)
	case "migrate":
		return migrateCommand(ctx, cfg)
	default:
		return fmt.Errorf("unknown command %q (want serve, seed or migrate)", cmd)
	}
}

func serve(ctx context.Context, cfg models.Config) error {
	shutdownOTel := initOTel(ctx, cfg, logrusLogger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logrusLogger.WithError(err).Warn("otel shutdown failed")
		}
	}()

	svc, err := buildServices(ctx, cfg, logrusLogger)
	if err != nil {
		return err
	}
	defer svc.Close()

	retention, err := startRetention(ctx, cfg, svc.notify, logrusLogger)
	if err != nil {
		return err
	}
	defer retention.Stop()

	app := GetMainEngine(svc)
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logrusLogger.WithError(err).Warn("http shutdown failed")
		}
	}()

	logrusLogger.WithFields(logrus.Fields{
		"addr":    cfg.Addr(),
		"store":   cfg.StoreDriver,
		"auth":    cfg.AuthMode,
		"version": version,
	}).Info("lumina listening")
	return app.Listen(cfg.Addr())
}

// startRetention schedules the purge of old read notifications.
func startRetention(ctx context.Context, cfg models.Config, n *notify.Service, logger *logrus.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(cfg.RetentionSchedule, func() {
		removed, err := n.Purge(ctx, cfg.Retention())
		entry := logger.WithFields(logrus.Fields{"removed": removed, "retention_days": cfg.NotificationRetentionDays})
		if err != nil {
			entry.WithError(err).Warn("notification purge failed")
			return
		}
		entry.Info("notification purge done")
	})
	if err != nil {
		return nil, fmt.Errorf("retention_schedule: %w", err)
	}
	c.Start()
	return c, nil
}

func migrateCommand(ctx context.Context, cfg models.Config) error {
	if cfg.StoreDriver == models.StoreFirestore {
		return fmt.Errorf("migrate applies to SQL stores, store_driver is %q", cfg.StoreDriver)
	}
	db, err := store.Open(cfg.StoreDriver, cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	logrusLogger.WithField("driver", db.Driver).Info("migrations applied")
	return nil
}

func seedCommand(ctx context.Context, cfg models.Config, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	opts := seedOptions{}
	fs.StringVar(&opts.AdminUID, "admin-uid", defaultSeedAdminUID, "uid of the first super admin")
	fs.StringVar(&opts.AdminEmail, "admin-email", defaultSeedAdminEmail, "email of the first super admin")
	fs.StringVar(&opts.AdminPassword, "admin-password", "", "password for local auth mode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var fb *firebase.App
	if cfg.StoreDriver == models.StoreFirestore {
		var err error
		if fb, err = newFirebaseApp(ctx, cfg); err != nil {
			return fmt.Errorf("firebase: %w", err)
		}
	}
	st, err := openStore(ctx, cfg, fb)
	if err != nil {
		return err
	}
	defer st.Close()
	tenantCache := openCache(ctx, cfg, logrusLogger)
	if r, ok := tenantCache.(*cache.Redis); ok {
		defer r.Close()
	}
	return seed(ctx, st, tenantCache, opts, logrusLogger)
}
