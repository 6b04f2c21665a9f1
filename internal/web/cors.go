package web

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errWildcardOrigin      = errors.New("cors: wildcard origin not allowed when credentials are enabled")
	errEmptyAllowedOrigins = errors.New("cors: no explicit origins provided")
	errInvalidOrigin       = errors.New("cors: invalid origin format")
	errInsecureOrigin      = errors.New("cors: http origin outside local development")
)

// ConfigureCORS enables cross-origin requests for the supplied origins.
// Browser clients authenticate with the session cookies, so every request is
// credentialed: wildcard origins are forbidden outright, and a plain-http
// origin would strip the Secure cookie attribute, so anything but localhost
// over http is rejected too.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitized, err := sanitizeOrigins(allowedOrigins)
	if err != nil {
		return nil, err
	}
	logger.Info("cors enabled", zap.Strings("origins", sanitized))
	config := cors.Config{
		AllowOrigins:     sanitized,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", "Authorization"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(config), nil
}

func sanitizeOrigins(allowed []string) ([]string, error) {
	if len(allowed) == 0 {
		return nil, errEmptyAllowedOrigins
	}

	cloned := make([]string, len(allowed))
	copy(cloned, allowed)
	sort.Strings(cloned)

	seen := make(map[string]struct{})
	sanitized := make([]string, 0, len(cloned))
	for _, origin := range cloned {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		normalized, normalizeErr := normalizeOrigin(trimmed)
		if normalizeErr != nil {
			return nil, normalizeErr
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		sanitized = append(sanitized, normalized)
	}

	if len(sanitized) == 0 {
		return nil, errEmptyAllowedOrigins
	}
	return sanitized, nil
}

func normalizeOrigin(origin string) (string, error) {
	if origin == "*" {
		return "", errWildcardOrigin
	}
	parsed, parseErr := url.Parse(origin)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", errInvalidOrigin, origin)
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("%w: %s must be scheme and host only", errInvalidOrigin, origin)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "https":
	case "http":
		if !isDevelopmentHost(parsed.Hostname()) {
			return "", fmt.Errorf("%w: %s", errInsecureOrigin, origin)
		}
	default:
		return "", fmt.Errorf("%w: %s uses unsupported scheme", errInvalidOrigin, origin)
	}
	return fmt.Sprintf("%s://%s", scheme, parsed.Host), nil
}

func isDevelopmentHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}
