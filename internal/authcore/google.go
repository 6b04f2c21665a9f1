package authcore

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// SocialProfile is the verified identity asserted by an external provider.
type SocialProfile struct {
	Name      string
	Email     string
	AvatarURL string
}

// SocialVerifier turns a provider-signed assertion into a verified profile.
type SocialVerifier interface {
	Verify(ctx context.Context, assertion string) (SocialProfile, error)
}

// GoogleVerifier validates Google ID tokens against the configured web
// client id.
type GoogleVerifier struct {
	validator *idtoken.Validator
	clientID  string
}

// NewGoogleVerifier constructs a verifier bound to clientID.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	validator, validatorErr := idtoken.NewValidator(ctx)
	if validatorErr != nil {
		return nil, fmt.Errorf("social.google.init: %w", validatorErr)
	}
	return &GoogleVerifier{validator: validator, clientID: clientID}, nil
}

// Verify checks the token signature, issuer, audience, and verified-email
// claim, then extracts the profile.
func (verifier *GoogleVerifier) Verify(ctx context.Context, assertion string) (SocialProfile, error) {
	payload, validateErr := verifier.validator.Validate(ctx, assertion, verifier.clientID)
	if validateErr != nil {
		return SocialProfile{}, fmt.Errorf("%w: %w", ErrInvalidSignature, validateErr)
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		return SocialProfile{}, ErrInvalidSignature
	}
	userEmail, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	displayName, _ := payload.Claims["name"].(string)
	avatarURL, _ := payload.Claims["picture"].(string)
	if userEmail == "" || !emailVerified {
		return SocialProfile{}, ErrInvalidCredential
	}
	return SocialProfile{Name: displayName, Email: userEmail, AvatarURL: avatarURL}, nil
}
