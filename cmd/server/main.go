package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pagefeedhq/pagefeed/internal/api"
	"github.com/pagefeedhq/pagefeed/internal/app"
	"github.com/pagefeedhq/pagefeed/internal/app/maintenance"
	iauth "github.com/pagefeedhq/pagefeed/internal/auth"
	"github.com/pagefeedhq/pagefeed/internal/database"
	"github.com/pagefeedhq/pagefeed/internal/middleware"
	"github.com/pagefeedhq/pagefeed/internal/services"
	"github.com/pagefeedhq/pagefeed/internal/tenant"
	"github.com/pagefeedhq/pagefeed/pkg/logger"
	"github.com/pagefeedhq/pagefeed/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pagefeed-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	// Refuse to start without a signing secret rather than failing per request.
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	tokens, err := iauth.NewSessionTokenService(cfg.SessionTokenConfig())
	if err != nil {
		return fmt.Errorf("initialise session token service: %w", err)
	}

	tenants, err := tenant.NewService(db, cfg.Platform.RootDomain)
	if err != nil {
		return fmt.Errorf("initialise tenant service: %w", err)
	}

	resolver := tenant.NewResolver(cfg.Platform.RootDomain, cfg.Platform.DevSlug, cfg.Platform.StagingSuffix)

	mailer, err := mail.NewSMTPMailer(cfg.SMTPSettings())
	if err != nil {
		return fmt.Errorf("initialise mailer: %w", err)
	}
	dispatcher, err := mail.NewDispatcher(mailer)
	if err != nil {
		return fmt.Errorf("initialise mail dispatcher: %w", err)
	}
	defer dispatcher.Close()

	magicLinks, err := services.NewMagicLinkService(db, tenants, dispatcher,
		services.WithTokenTTL(cfg.Auth.MagicLink.TokenTTL),
		services.WithCooldown(cfg.Auth.MagicLink.Cooldown),
	)
	if err != nil {
		return fmt.Errorf("initialise magic link service: %w", err)
	}

	cleaner := maintenance.NewCleaner(db, magicLinks)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := cleaner.Stop()
		if err := cleaner.RunOnce(stopCtx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(api.Deps{
		DB:         db,
		Tokens:     tokens,
		Tenants:    tenants,
		MagicLinks: magicLinks,
		Resolver:   resolver,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		// The rewrite filter must run before gin's route matching.
		Handler: middleware.TenantRewrite(resolver, router),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DatabaseSettings())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))),
	)

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("acquire database handle for close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
