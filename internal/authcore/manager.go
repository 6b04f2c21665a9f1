package authcore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SessionRecord is the serialized snapshot stored in the session cache under
// key = user id. RefreshTokenID tracks the jti of the last-issued refresh
// token; refreshing with any other jti is treated as a dead session.
type SessionRecord struct {
	User           Identity `json:"user"`
	RefreshTokenID string   `json:"refresh_token_id,omitempty"`
}

// TokenPair is the result of a successful issuance.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Identity     Identity
}

// SessionManager orchestrates issuance, validation, refresh, and revocation
// of sessions over the credential store and session cache.
type SessionManager struct {
	configuration Config
	issuer        *TokenIssuer
	users         CredentialStore
	sessions      SessionCache
	clock         Clock
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// NewSessionManager wires the manager; logger and metrics may be nil.
func NewSessionManager(configuration Config, issuer *TokenIssuer, users CredentialStore, sessions SessionCache, clock Clock, logger *zap.Logger, metrics MetricsRecorder) *SessionManager {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SessionManager{
		configuration: configuration.Defaults(),
		issuer:        issuer,
		users:         users,
		sessions:      sessions,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

// Login authenticates by email and password and issues a token pair.
func (manager *SessionManager) Login(ctx context.Context, email string, password string) (TokenPair, error) {
	identity, findErr := manager.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if findErr != nil {
		return TokenPair{}, fmt.Errorf("session.login: %w", findErr)
	}
	if identity == nil {
		return TokenPair{}, ErrInvalidCredential
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); compareErr != nil {
		return TokenPair{}, ErrInvalidCredential
	}
	pair, issueErr := manager.issueSession(ctx, *identity)
	if issueErr != nil {
		return TokenPair{}, issueErr
	}
	manager.metrics.Increment("auth.login")
	manager.logger.Info("session issued", zap.String("user_id", identity.ID))
	return pair, nil
}

// SocialLogin verifies an external identity assertion, upserting the user
// before issuing a session the same way Login does.
func (manager *SessionManager) SocialLogin(ctx context.Context, profile SocialProfile) (TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return TokenPair{}, ErrInvalidCredential
	}
	identity, findErr := manager.users.FindByEmail(ctx, email)
	if findErr != nil {
		return TokenPair{}, fmt.Errorf("session.social: %w", findErr)
	}
	if identity == nil {
		created, createErr := manager.users.Create(ctx, &Identity{
			Name:       profile.Name,
			Email:      email,
			Role:       RoleUser,
			AvatarURL:  profile.AvatarURL,
			IsVerified: true,
		})
		if createErr != nil {
			return TokenPair{}, fmt.Errorf("session.social: %w", createErr)
		}
		identity = created
	}
	pair, issueErr := manager.issueSession(ctx, *identity)
	if issueErr != nil {
		return TokenPair{}, issueErr
	}
	manager.metrics.Increment("auth.social_login")
	manager.logger.Info("social session issued", zap.String("user_id", identity.ID))
	return pair, nil
}

// ValidateRequest establishes the identity behind an access token. It reads
// only the session cache so the hot path stays O(1) and store-agnostic.
func (manager *SessionManager) ValidateRequest(ctx context.Context, accessToken string) (Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Identity{}, ErrMissingToken
	}
	claims, verifyErr := manager.issuer.VerifyAccessToken(accessToken)
	if verifyErr != nil {
		return Identity{}, verifyErr
	}
	record, found, cacheErr := manager.loadRecord(ctx, claims.UserID)
	if cacheErr != nil {
		return Identity{}, cacheErr
	}
	if !found {
		return Identity{}, ErrSessionExpired
	}
	return record.User, nil
}

// Refresh consumes a refresh token and mints a new pair. This is the only
// path that extends a live session's cache lifetime.
func (manager *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, ErrMissingToken
	}
	claims, verifyErr := manager.issuer.VerifyRefreshToken(refreshToken)
	if verifyErr != nil {
		return TokenPair{}, verifyErr
	}
	record, found, cacheErr := manager.loadRecord(ctx, claims.UserID)
	if cacheErr != nil {
		return TokenPair{}, cacheErr
	}
	if !found {
		return TokenPair{}, ErrSessionExpired
	}
	if record.RefreshTokenID != "" && record.RefreshTokenID != claims.TokenID {
		// A superseded refresh token; the session moved on without it.
		return TokenPair{}, ErrSessionExpired
	}
	pair, issueErr := manager.issueSession(ctx, record.User)
	if issueErr != nil {
		return TokenPair{}, issueErr
	}
	manager.metrics.Increment("auth.refresh")
	return pair, nil
}

// Logout deletes the session record. Logging out twice is not an error.
func (manager *SessionManager) Logout(ctx context.Context, userID string) error {
	if deleteErr := manager.sessions.Delete(ctx, userID); deleteErr != nil {
		return fmt.Errorf("session.logout: %w", deleteErr)
	}
	manager.metrics.Increment("auth.logout")
	manager.logger.Info("session revoked", zap.String("user_id", userID))
	return nil
}

// InvalidateOnMutation rewrites the cached snapshot after an
// identity-affecting write so the cache never serves a stale identity. The
// current refresh token id is preserved.
func (manager *SessionManager) InvalidateOnMutation(ctx context.Context, updated Identity) error {
	record, found, cacheErr := manager.loadRecord(ctx, updated.ID)
	if cacheErr != nil {
		return cacheErr
	}
	if !found {
		// No live session to update.
		return nil
	}
	record.User = updated
	return manager.storeRecord(ctx, record)
}

// SetSessionCookies writes both tokens as scoped http-only cookies.
func (manager *SessionManager) SetSessionCookies(contextGin *gin.Context, pair TokenPair) {
	manager.writeCookie(contextGin, manager.configuration.AccessCookieName, pair.AccessToken, int(manager.configuration.AccessTokenTTL.Seconds()))
	manager.writeCookie(contextGin, manager.configuration.RefreshCookieName, pair.RefreshToken, int(manager.configuration.RefreshTokenTTL.Seconds()))
}

// ClearSessionCookies overwrites both cookies with immediately expiring
// empty values.
func (manager *SessionManager) ClearSessionCookies(contextGin *gin.Context) {
	manager.writeCookie(contextGin, manager.configuration.AccessCookieName, "", -1)
	manager.writeCookie(contextGin, manager.configuration.RefreshCookieName, "", -1)
}

// AccessTokenFromRequest extracts the access token cookie, empty when absent.
func (manager *SessionManager) AccessTokenFromRequest(request *http.Request) string {
	return cookieValue(request, manager.configuration.AccessCookieName)
}

// RefreshTokenFromRequest extracts the refresh token cookie, empty when absent.
func (manager *SessionManager) RefreshTokenFromRequest(request *http.Request) string {
	return cookieValue(request, manager.configuration.RefreshCookieName)
}

func (manager *SessionManager) issueSession(ctx context.Context, identity Identity) (TokenPair, error) {
	accessToken, _, accessErr := manager.issuer.SignAccessToken(identity.ID)
	if accessErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue: %w", accessErr)
	}
	refreshTokenID := uuid.NewString()
	refreshToken, _, refreshErr := manager.issuer.SignRefreshToken(identity.ID, refreshTokenID)
	if refreshErr != nil {
		return TokenPair{}, fmt.Errorf("session.issue: %w", refreshErr)
	}
	record := SessionRecord{User: identity, RefreshTokenID: refreshTokenID}
	if storeErr := manager.storeRecord(ctx, record); storeErr != nil {
		return TokenPair{}, storeErr
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, Identity: identity}, nil
}

func (manager *SessionManager) loadRecord(ctx context.Context, userID string) (SessionRecord, bool, error) {
	raw, found, getErr := manager.sessions.Get(ctx, userID)
	if getErr != nil {
		return SessionRecord{}, false, fmt.Errorf("session.cache.get: %w", getErr)
	}
	if !found {
		return SessionRecord{}, false, nil
	}
	var record SessionRecord
	if unmarshalErr := json.Unmarshal([]byte(raw), &record); unmarshalErr != nil {
		return SessionRecord{}, false, fmt.Errorf("session.cache.decode: %w", unmarshalErr)
	}
	return record, true, nil
}

func (manager *SessionManager) storeRecord(ctx context.Context, record SessionRecord) error {
	encoded, marshalErr := json.Marshal(record)
	if marshalErr != nil {
		return fmt.Errorf("session.cache.encode: %w", marshalErr)
	}
	if setErr := manager.sessions.Set(ctx, record.User.ID, string(encoded), manager.configuration.SessionTTL); setErr != nil {
		return fmt.Errorf("session.cache.set: %w", setErr)
	}
	return nil
}

func (manager *SessionManager) writeCookie(contextGin *gin.Context, name string, value string, maxAge int) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   manager.configuration.CookieDomain,
		MaxAge:   maxAge,
		Secure:   !manager.configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: manager.configuration.SameSiteMode,
	})
}

func cookieValue(request *http.Request, name string) string {
	cookie, cookieErr := request.Cookie(name)
	if cookieErr != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}
