package authcore

import (
	"net/http"
	"time"
)

// Config carries every secret, TTL, and cookie attribute the core needs. It
// is constructed once at startup and passed into the constructors; nothing in
// this package reads process-wide state.
type Config struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	ActivationSecret   []byte

	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ActivationTTL   time.Duration
	// SessionTTL bounds every session record write; refresh is the only path
	// that extends a live session.
	SessionTTL time.Duration

	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}

// Defaults fills zero-valued fields with the documented defaults.
func (configuration Config) Defaults() Config {
	if configuration.Issuer == "" {
		configuration.Issuer = "lms-auth"
	}
	if configuration.AccessTokenTTL <= 0 {
		configuration.AccessTokenTTL = 5 * time.Minute
	}
	if configuration.RefreshTokenTTL <= 0 {
		configuration.RefreshTokenTTL = 72 * time.Hour
	}
	if configuration.ActivationTTL <= 0 {
		configuration.ActivationTTL = 5 * time.Minute
	}
	if configuration.SessionTTL <= 0 {
		configuration.SessionTTL = 7 * 24 * time.Hour
	}
	if configuration.AccessCookieName == "" {
		configuration.AccessCookieName = "access_token"
	}
	if configuration.RefreshCookieName == "" {
		configuration.RefreshCookieName = "refresh_token"
	}
	if configuration.SameSiteMode == 0 {
		configuration.SameSiteMode = http.SameSiteLaxMode
	}
	return configuration
}
