package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Omianju/LMS/internal/authcore"
)

func setRequiredSecrets() {
	viper.Set("access_token_secret", "access-secret")
	viper.Set("refresh_token_secret", "refresh-secret")
	viper.Set("activation_secret", "activation-secret")
	viper.Set("access_ttl", 5*time.Minute)
	viper.Set("refresh_ttl", 72*time.Hour)
	viper.Set("activation_ttl", 5*time.Minute)
	viper.Set("session_ttl", 7*24*time.Hour)
}

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresEachSecret(t *testing.T) {
	cases := []struct {
		missing         string
		expectedMessage string
	}{
		{"access_token_secret", "config.missing_access_token_secret: access_token_secret must be provided"},
		{"refresh_token_secret", "config.missing_refresh_token_secret: refresh_token_secret must be provided"},
		{"activation_secret", "config.missing_activation_secret: activation_secret must be provided"},
	}
	for _, testCase := range cases {
		viper.Reset()
		setRequiredSecrets()
		viper.Set(testCase.missing, "")

		_, err := LoadServerConfig()
		if err == nil {
			t.Fatalf("expected error when %s is missing", testCase.missing)
		}
		if err.Error() != testCase.expectedMessage {
			t.Fatalf("expected error %q, got %q", testCase.expectedMessage, err.Error())
		}
	}
	viper.Reset()
}

func TestLoadServerConfigRequiresDistinctSecrets(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredSecrets()
	viper.Set("refresh_token_secret", "access-secret")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when secrets are shared")
	}
	expectedMessage := "config.secrets_not_distinct: token secrets must be pairwise distinct"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresPositiveTTLs(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredSecrets()
	viper.Set("session_ttl", 0)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when session_ttl is non-positive")
	}
	expectedMessage := "config.invalid_ttl: session_ttl must be greater than zero"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredSecrets()

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	if config.Issuer != "lms-auth" {
		t.Fatalf("expected default issuer, got %q", config.Issuer)
	}
	if config.AccessCookieName != "access_token" || config.RefreshCookieName != "refresh_token" {
		t.Fatalf("expected default cookie names, got %q/%q", config.AccessCookieName, config.RefreshCookieName)
	}
	if config.SameSiteMode != http.SameSiteLaxMode {
		t.Fatalf("expected lax same-site mode, got %v", config.SameSiteMode)
	}
}

func TestRunServerSocialVerifierInitFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreVerifier := withSocialVerifierStub(func(ctx context.Context, googleClientID string) (authcore.SocialVerifier, error) {
		return nil, errors.New("verifier_fail")
	})
	defer restoreVerifier()

	setRequiredSecrets()
	viper.Set("listen_addr", ":0")
	viper.Set("google_web_client_id", "client")

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if runErr := runServer(command, nil); runErr == nil || runErr.Error() != "config.social_verifier_init: verifier_fail" {
		t.Fatalf("expected social verifier init error, got %v", runErr)
	}
}

func TestRunServerSuccessWithSQLiteStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	setRequiredSecrets()
	viper.Set("listen_addr", ":0")
	viper.Set("dev_insecure_http", true)
	viper.Set("database_url", "sqlite:file:main_sqlite?mode=memory&cache=shared")
	viper.Set("enable_cors", true)
	viper.Set("cors_allowed_origins", []string{"http://localhost:3000"})

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if runErr := runServer(command, nil); runErr != nil {
		t.Fatalf("expected runServer to succeed, got %v", runErr)
	}
}

func TestRunServerInMemoryFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	setRequiredSecrets()
	viper.Set("listen_addr", ":0")
	viper.Set("dev_insecure_http", true)

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if runErr := runServer(command, nil); runErr != nil {
		t.Fatalf("expected runServer to succeed with in-memory fallbacks, got %v", runErr)
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}

func withSocialVerifierStub(stub func(ctx context.Context, googleClientID string) (authcore.SocialVerifier, error)) func() {
	previous := buildSocialVerifier
	buildSocialVerifier = stub
	return func() {
		buildSocialVerifier = previous
	}
}
