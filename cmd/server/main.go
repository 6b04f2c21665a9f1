package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Omianju/LMS/internal/authcore"
	"github.com/Omianju/LMS/internal/mailer"
	"github.com/Omianju/LMS/internal/sessioncache"
	"github.com/Omianju/LMS/internal/userstore"
	"github.com/Omianju/LMS/internal/web"
	mailtemplates "github.com/Omianju/LMS/mails"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildSocialVerifier = func(ctx context.Context, googleClientID string) (authcore.SocialVerifier, error) {
	return authcore.NewGoogleVerifier(ctx, googleClientID)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "lms-server",
		Short:   "Course platform backend with JWT sessions, a Redis session cache, and email activation",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "", "Database URL for users (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().String("redis_addr", "", "Redis address for the session cache; leave empty for in-memory cache")
	rootCmd.Flags().String("redis_password", "", "Redis password")
	rootCmd.Flags().Int("redis_db", 0, "Redis database index")
	rootCmd.Flags().String("access_token_secret", "", "HS256 secret for access tokens")
	rootCmd.Flags().String("refresh_token_secret", "", "HS256 secret for refresh tokens")
	rootCmd.Flags().String("activation_secret", "", "HS256 secret for activation tokens")
	rootCmd.Flags().Duration("access_ttl", 5*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 72*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Duration("activation_ttl", 5*time.Minute, "Activation token TTL")
	rootCmd.Flags().Duration("session_ttl", 7*24*time.Hour, "Session cache record TTL")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP cookies for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID; empty disables social auth")
	rootCmd.Flags().String("smtp_host", "", "SMTP host; empty logs activation mails instead of sending")
	rootCmd.Flags().Int("smtp_port", 587, "SMTP port")
	rootCmd.Flags().String("smtp_user", "", "SMTP username")
	rootCmd.Flags().String("smtp_password", "", "SMTP password")
	rootCmd.Flags().String("smtp_from", "", "From address for outbound mail")

	for _, flagName := range []string{
		"listen_addr", "database_url", "redis_addr", "redis_password", "redis_db",
		"access_token_secret", "refresh_token_secret", "activation_secret",
		"access_ttl", "refresh_ttl", "activation_ttl", "session_ttl",
		"cookie_domain", "dev_insecure_http", "enable_cors", "cors_allowed_origins",
		"google_web_client_id", "smtp_host", "smtp_port", "smtp_user", "smtp_password", "smtp_from",
	} {
		_ = viper.BindPFlag(flagName, rootCmd.Flags().Lookup(flagName))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingAccessSecret     = "config.missing_access_token_secret"
	configCodeMissingRefreshSecret    = "config.missing_refresh_token_secret"
	configCodeMissingActivationSecret = "config.missing_activation_secret"
	configCodeSecretsNotDistinct      = "config.secrets_not_distinct"
	configCodeInvalidTTL              = "config.invalid_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeSocialVerifierInit      = "config.social_verifier_init"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	// A local .env is a convenience for dev; absence is fine.
	if _, statErr := os.Stat(".env"); statErr == nil {
		if loadErr := godotenv.Load(".env"); loadErr != nil {
			return fmt.Errorf("config.dotenv: %w", loadErr)
		}
	}

	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the viper-bound settings into the explicit core
// configuration.
func LoadServerConfig() (authcore.Config, error) {
	accessSecret := viper.GetString("access_token_secret")
	if accessSecret == "" {
		return authcore.Config{}, configError(configCodeMissingAccessSecret, "access_token_secret must be provided")
	}
	refreshSecret := viper.GetString("refresh_token_secret")
	if refreshSecret == "" {
		return authcore.Config{}, configError(configCodeMissingRefreshSecret, "refresh_token_secret must be provided")
	}
	activationSecret := viper.GetString("activation_secret")
	if activationSecret == "" {
		return authcore.Config{}, configError(configCodeMissingActivationSecret, "activation_secret must be provided")
	}
	if accessSecret == refreshSecret || accessSecret == activationSecret || refreshSecret == activationSecret {
		return authcore.Config{}, configError(configCodeSecretsNotDistinct, "token secrets must be pairwise distinct")
	}

	for _, ttlFlag := range []string{"access_ttl", "refresh_ttl", "activation_ttl", "session_ttl"} {
		if viper.GetDuration(ttlFlag) <= 0 {
			return authcore.Config{}, configError(configCodeInvalidTTL, ttlFlag+" must be greater than zero")
		}
	}

	configuration := authcore.Config{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		ActivationSecret:   []byte(activationSecret),
		Issuer:             "lms-auth",
		AccessTokenTTL:     viper.GetDuration("access_ttl"),
		RefreshTokenTTL:    viper.GetDuration("refresh_ttl"),
		ActivationTTL:      viper.GetDuration("activation_ttl"),
		SessionTTL:         viper.GetDuration("session_ttl"),
		CookieDomain:       viper.GetString("cookie_domain"),
		AllowInsecureHTTP:  viper.GetBool("dev_insecure_http"),
		SameSiteMode:       http.SameSiteLaxMode,
	}
	return configuration.Defaults(), nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authcore.Config)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	redisAddr := viper.GetString("redis_addr")
	enableCORS := viper.GetBool("enable_cors")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, viper.GetStringSlice("cors_allowed_origins"))
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	var users web.UserDirectory
	if databaseURL != "" {
		databaseStore, storeErr := userstore.NewDatabaseStore(command.Context(), databaseURL)
		if storeErr != nil {
			return storeErr
		}
		users = databaseStore
		logger.Info("using persistent user store", zap.String("driver", databaseStore.Driver()))
	} else {
		users = userstore.NewMemoryStore()
		logger.Info("using in-memory user store")
	}

	var sessions authcore.SessionCache
	if redisAddr != "" {
		redisCache, cacheErr := sessioncache.New(command.Context(), redisAddr, viper.GetString("redis_password"), viper.GetInt("redis_db"))
		if cacheErr != nil {
			return cacheErr
		}
		defer func() { _ = redisCache.Close() }()
		sessions = redisCache
		logger.Info("using redis session cache", zap.String("addr", redisAddr))
	} else {
		sessions = authcore.NewMemorySessionCache(nil)
		logger.Info("using in-memory session cache")
	}

	var outbound authcore.Mailer
	if smtpHost := viper.GetString("smtp_host"); smtpHost != "" {
		smtpMailer, mailerErr := mailer.New(mailer.SMTPConfig{
			Host:     smtpHost,
			Port:     viper.GetInt("smtp_port"),
			Username: viper.GetString("smtp_user"),
			Password: viper.GetString("smtp_password"),
			From:     viper.GetString("smtp_from"),
		}, mailtemplates.FS, logger)
		if mailerErr != nil {
			return mailerErr
		}
		outbound = smtpMailer
	} else {
		outbound = mailer.NewCaptureMailer()
		logger.Warn("smtp not configured; activation mails are recorded, not delivered")
	}

	var social authcore.SocialVerifier
	if googleClientID := viper.GetString("google_web_client_id"); googleClientID != "" {
		googleVerifier, verifierErr := buildSocialVerifier(command.Context(), googleClientID)
		if verifierErr != nil {
			return fmt.Errorf("%s: %w", configCodeSocialVerifierInit, verifierErr)
		}
		social = googleVerifier
	}

	clock := authcore.NewSystemClock()
	metricsRecorder := authcore.NewCounterMetrics()
	issuer := authcore.NewTokenIssuer(serverConfig, clock)
	sessionManager := authcore.NewSessionManager(serverConfig, issuer, users, sessions, clock, logger, metricsRecorder)
	activationFlow := authcore.NewActivationFlow(issuer, users, outbound, logger)

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	authcore.MountAuthRoutes(api, sessionManager, activationFlow, social)
	web.MountProfileRoutes(api, sessionManager, users, web.PassthroughAvatarStore{}, logger)
	web.MountAdminRoutes(api.Group("/admin"), sessionManager, users, logger)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.String("request_id", requestid.Get(contextGin)),
			zap.Duration("elapsed", duration),
		)
	}
}
