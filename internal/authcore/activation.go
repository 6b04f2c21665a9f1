package authcore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ActivationFlow confirms an email address before a durable account exists.
// Nothing is persisted server-side until Activate succeeds; the signed token
// plus the mailed code are the only verification material.
type ActivationFlow struct {
	issuer *TokenIssuer
	users  CredentialStore
	mailer Mailer
	logger *zap.Logger
}

// ActivationMailTemplate names the template the mailer renders for the code.
const ActivationMailTemplate = "activation-mail"

// NewActivationFlow wires the flow; logger may be nil.
func NewActivationFlow(issuer *TokenIssuer, users CredentialStore, mailer Mailer, logger *zap.Logger) *ActivationFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivationFlow{issuer: issuer, users: users, mailer: mailer, logger: logger}
}

// Register mints an activation token for a new registration and mails the
// embedded code to the address being claimed.
func (flow *ActivationFlow) Register(ctx context.Context, name string, email string, password string) (ActivationToken, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, findErr := flow.users.FindByEmail(ctx, email)
	if findErr != nil {
		return ActivationToken{}, fmt.Errorf("activation.register: %w", findErr)
	}
	if existing != nil {
		return ActivationToken{}, ErrEmailTaken
	}

	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hashErr != nil {
		return ActivationToken{}, fmt.Errorf("activation.register: %w", hashErr)
	}

	activation, signErr := flow.issuer.SignActivationToken(PendingUser{
		Name:         name,
		Email:        email,
		PasswordHash: string(passwordHash),
	})
	if signErr != nil {
		return ActivationToken{}, fmt.Errorf("activation.register: %w", signErr)
	}

	if sendErr := flow.mailer.Send(ctx, email, ActivationMailTemplate, map[string]any{
		"Name":           name,
		"ActivationCode": activation.ActivationCode,
	}); sendErr != nil {
		return ActivationToken{}, fmt.Errorf("activation.mail: %w", sendErr)
	}

	flow.logger.Info("activation token issued", zap.String("email", email))
	return activation, nil
}

// Activate verifies the token and code, then persists the pending identity.
// No session or tokens are created; the user logs in afterwards.
func (flow *ActivationFlow) Activate(ctx context.Context, token string, suppliedCode string) (*Identity, error) {
	pendingUser, embeddedCode, verifyErr := flow.issuer.VerifyActivationToken(token)
	if verifyErr != nil {
		return nil, verifyErr
	}
	if subtle.ConstantTimeCompare([]byte(embeddedCode), []byte(suppliedCode)) != 1 {
		return nil, ErrCodeMismatch
	}

	// A concurrent registration may have claimed the email during the
	// activation window.
	existing, findErr := flow.users.FindByEmail(ctx, pendingUser.Email)
	if findErr != nil {
		return nil, fmt.Errorf("activation.activate: %w", findErr)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	identity, createErr := flow.users.Create(ctx, &Identity{
		Name:         pendingUser.Name,
		Email:        pendingUser.Email,
		PasswordHash: pendingUser.PasswordHash,
		Role:         RoleUser,
		IsVerified:   true,
	})
	if createErr != nil {
		return nil, fmt.Errorf("activation.activate: %w", createErr)
	}
	flow.logger.Info("account activated", zap.String("user_id", identity.ID))
	return identity, nil
}
