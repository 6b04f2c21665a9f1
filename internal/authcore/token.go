package authcore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints and verifies the three token classes. Each class uses a
// distinct secret so a leaked access secret cannot forge refresh or
// activation tokens.
type TokenIssuer struct {
	configuration Config
	clock         Clock
}

// NewTokenIssuer constructs an issuer bound to the given configuration.
func NewTokenIssuer(configuration Config, clock Clock) *TokenIssuer {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenIssuer{configuration: configuration.Defaults(), clock: clock}
}

// TokenClaims are the verified contents of an access or refresh token.
type TokenClaims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// PendingUser is the not-yet-persisted registration embedded in an
// activation token. The password is already hashed when the token is minted.
type PendingUser struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

type sessionTokenClaims struct {
	jwt.RegisteredClaims
}

type activationTokenClaims struct {
	User           PendingUser `json:"user"`
	ActivationCode string      `json:"activation_code"`
	jwt.RegisteredClaims
}

// SignAccessToken mints a short-lived access token for the user.
func (issuer *TokenIssuer) SignAccessToken(userID string) (string, time.Time, error) {
	return issuer.signSessionToken(userID, "", issuer.configuration.AccessTokenSecret, issuer.configuration.AccessTokenTTL)
}

// SignRefreshToken mints a refresh token carrying tokenID as its jti; the
// session record tracks that id so superseded tokens can be rejected.
func (issuer *TokenIssuer) SignRefreshToken(userID string, tokenID string) (string, time.Time, error) {
	return issuer.signSessionToken(userID, tokenID, issuer.configuration.RefreshTokenSecret, issuer.configuration.RefreshTokenTTL)
}

func (issuer *TokenIssuer) signSessionToken(userID string, tokenID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("token.sign: subject must be non-empty")
	}
	issuedAt := issuer.clock.Now()
	expiresAt := issuedAt.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer.configuration.Issuer,
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(secret)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token.sign: %w", signErr)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken checks an access token's signature and expiry.
func (issuer *TokenIssuer) VerifyAccessToken(token string) (TokenClaims, error) {
	return issuer.verifySessionToken(token, issuer.configuration.AccessTokenSecret)
}

// VerifyRefreshToken checks a refresh token's signature and expiry.
func (issuer *TokenIssuer) VerifyRefreshToken(token string) (TokenClaims, error) {
	return issuer.verifySessionToken(token, issuer.configuration.RefreshTokenSecret)
}

func (issuer *TokenIssuer) verifySessionToken(token string, secret []byte) (TokenClaims, error) {
	claims := &sessionTokenClaims{}
	parsed, parseErr := jwt.ParseWithClaims(token, claims, func(parsed *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer.configuration.Issuer),
		jwt.WithTimeFunc(issuer.clock.Now),
	)
	if parseErr != nil || parsed == nil || !parsed.Valid {
		return TokenClaims{}, classifyTokenError(parseErr)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return TokenClaims{}, ErrInvalidSignature
	}
	return TokenClaims{
		UserID:    claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ActivationToken pairs the signed payload with the out-of-band code.
type ActivationToken struct {
	Token          string
	ActivationCode string
	ExpiresAt      time.Time
}

// SignActivationToken embeds the pending user and a fresh 4-digit code in a
// single short-lived payload. The code travels twice: inside the signature
// and through the mailer, so the signed token alone cannot activate.
func (issuer *TokenIssuer) SignActivationToken(pendingUser PendingUser) (ActivationToken, error) {
	if pendingUser.Email == "" {
		return ActivationToken{}, fmt.Errorf("token.activation: email must be non-empty")
	}
	activationCode, codeErr := generateActivationCode()
	if codeErr != nil {
		return ActivationToken{}, fmt.Errorf("token.activation: %w", codeErr)
	}
	issuedAt := issuer.clock.Now()
	expiresAt := issuedAt.Add(issuer.configuration.ActivationTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, activationTokenClaims{
		User:           pendingUser,
		ActivationCode: activationCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer.configuration.Issuer,
			Subject:   pendingUser.Email,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(issuer.configuration.ActivationSecret)
	if signErr != nil {
		return ActivationToken{}, fmt.Errorf("token.activation: %w", signErr)
	}
	return ActivationToken{Token: signed, ActivationCode: activationCode, ExpiresAt: expiresAt}, nil
}

// VerifyActivationToken checks the activation payload and returns the pending
// user together with the embedded code.
func (issuer *TokenIssuer) VerifyActivationToken(token string) (PendingUser, string, error) {
	claims := &activationTokenClaims{}
	parsed, parseErr := jwt.ParseWithClaims(token, claims, func(parsed *jwt.Token) (interface{}, error) {
		return issuer.configuration.ActivationSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer.configuration.Issuer),
		jwt.WithTimeFunc(issuer.clock.Now),
	)
	if parseErr != nil || parsed == nil || !parsed.Valid {
		return PendingUser{}, "", classifyTokenError(parseErr)
	}
	if claims.User.Email == "" || claims.ActivationCode == "" {
		return PendingUser{}, "", ErrInvalidSignature
	}
	return claims.User, claims.ActivationCode, nil
}

func classifyTokenError(parseErr error) error {
	if parseErr != nil && errors.Is(parseErr, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", ErrTokenExpired, parseErr)
	}
	if parseErr == nil {
		return ErrInvalidSignature
	}
	return fmt.Errorf("%w: %w", ErrInvalidSignature, parseErr)
}

func generateActivationCode() (string, error) {
	// Uniform in [1000, 9999] so the code is always four digits.
	offset, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", offset.Int64()+1000), nil
}
