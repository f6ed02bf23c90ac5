package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/accounts"
	"github.com/MarcoPoloResearchLab/sundae/internal/analytics"
	"github.com/MarcoPoloResearchLab/sundae/internal/auth"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/config"
	"github.com/MarcoPoloResearchLab/sundae/internal/database"
	"github.com/MarcoPoloResearchLab/sundae/internal/ids"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/logging"
	"github.com/MarcoPoloResearchLab/sundae/internal/notify"
	"github.com/MarcoPoloResearchLab/sundae/internal/pagecache"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	"github.com/MarcoPoloResearchLab/sundae/internal/redirects"
	"github.com/MarcoPoloResearchLab/sundae/internal/render"
	"github.com/MarcoPoloResearchLab/sundae/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sundae-api",
		Short: "Sundae link-in-bio backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(); err != nil {
				return err
			}
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and apply data migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("database-driver", "", "Database driver (sqlite or postgres)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("database-dsn", "", "Postgres connection URL")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Optional rotating log file")
	flags.String("app-url", "", "Public origin used in emails and the sitemap")
	flags.String("redis-url", "", "Redis URL for the public page cache")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")
	flags.Bool("e2e", false, "Enable the test login endpoint")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
	bindFlag(cmd, "app.url", "app-url")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "e2e.enabled", "e2e")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// loadDotEnv fills unset environment variables from the dotenv file, if present.
func loadDotEnv() error {
	if strings.TrimSpace(envFile) == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func databaseOptions(appConfig config.AppConfig) database.Options {
	return database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}
}

func runMigrations() error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenAndMigrate(databaseOptions(appConfig), logger)
	if err != nil {
		return err
	}
	return database.Close(db)
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenAndMigrate(databaseOptions(appConfig), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn("database close failed", zap.Error(err))
		}
	}()

	cache, closeCache, err := newPageCache(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	handler, err := buildHandler(appConfig, db, cache, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.String("database", appConfig.DatabaseDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newPageCache picks redis when configured, memory otherwise, and nothing when the TTL is zero.
func newPageCache(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (pagecache.Cache, func(), error) {
	switch {
	case appConfig.CacheTTL <= 0:
		return pagecache.NopCache{}, func() {}, nil
	case appConfig.RedisURL != "":
		redisCache, err := pagecache.NewRedisCache(ctx, appConfig.RedisURL, appConfig.CacheTTL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("page cache backed by redis", zap.Duration("ttl", appConfig.CacheTTL))
		return redisCache, func() {
			if err := redisCache.Close(); err != nil {
				logger.Warn("redis close failed", zap.Error(err))
			}
		}, nil
	default:
		return pagecache.NewMemoryCache(appConfig.CacheTTL, time.Now), func() {}, nil
	}
}

func buildHandler(appConfig config.AppConfig, db *gorm.DB, cache pagecache.Cache, logger *zap.Logger) (http.Handler, error) {
	idProvider := ids.NewUUIDProvider()
	realtime := server.NewRealtimeDispatcher()
	invalidator := server.NewPageInvalidator(cache, realtime, logger)

	profileService, err := profiles.NewService(profiles.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		IDProvider:  idProvider,
		Invalidator: invalidator,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	blockService, err := blocks.NewService(blocks.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		IDProvider:  idProvider,
		Invalidator: invalidator,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	accountService, err := accounts.NewService(accounts.ServiceConfig{
		Database:    db,
		Profiles:    profileService,
		Blocks:      blockService,
		IDProvider:  idProvider,
		Invalidator: invalidator,
		Clock:       time.Now,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	analyticsService, err := analytics.NewService(analytics.ServiceConfig{
		Database:   db,
		Profiles:   profileService,
		Hasher:     analytics.NewIPHasher(appConfig.AnalyticsIPSalt),
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	resend := notify.NewResendClient(notify.ResendConfig{
		APIKey:   appConfig.ResendAPIKey,
		From:     appConfig.ResendFrom,
		Endpoint: appConfig.ResendEndpoint,
		E2EMode:  appConfig.E2EEnabled,
		Logger:   logger,
	})
	if !resend.Enabled() {
		logger.Info("lead notifications disabled", zap.String("reason", notify.ReasonNotEnabled))
	}
	leadService, err := leads.NewService(leads.ServiceConfig{
		Database:   db,
		Profiles:   profileService,
		Owners:     accountService,
		Notifier:   resend,
		Listener:   realtime,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	renderer, err := render.NewRenderer()
	if err != nil {
		return nil, err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return nil, err
	}
	var sessionIssuer *auth.SessionIssuer
	if appConfig.E2EEnabled {
		sessionIssuer, err = auth.NewSessionIssuer(auth.SessionIssuerConfig{
			SigningSecret: []byte(appConfig.SessionSigningSecret),
			Issuer:        appConfig.SessionIssuer,
			CookieName:    appConfig.SessionCookieName,
			Secure:        strings.HasPrefix(appConfig.PublicBaseURL(), "https://"),
		})
		if err != nil {
			return nil, err
		}
		logger.Warn("e2e login endpoint enabled")
	}

	return server.NewHTTPHandler(server.Dependencies{
		Profiles:       profileService,
		Blocks:         blockService,
		Leads:          leadService,
		Analytics:      analyticsService,
		Accounts:       accountService,
		Redirects:      redirects.NewResolver(blockService, analyticsService, logger),
		Renderer:       renderer,
		Cache:          cache,
		Sessions:       sessionValidator,
		Issuer:         sessionIssuer,
		Realtime:       realtime,
		AppURL:         appConfig.AppURL,
		PublicBaseURL:  appConfig.PublicBaseURL(),
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		MetricsEnabled: appConfig.MetricsEnabled,
		E2EEnabled:     appConfig.E2EEnabled,
		Logger:         logger,
	})
}
