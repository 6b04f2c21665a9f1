package authcore

import (
	"context"
	"strings"
	"time"
)

// Role is the closed classification gating administrative operations.
type Role string

const (
	// RoleUser is the default role assigned to every activated account.
	RoleUser Role = "user"
	// RoleAdmin grants access to the administrative endpoints.
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a raw role string, defaulting unknown values to user.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Identity is the application user snapshot attached to authenticated
// requests and cached in the session record. The password hash is write-only
// and never serialized to clients.
type Identity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	OwnedCourseIDs []string  `json:"owned_course_ids"`
	IsVerified     bool      `json:"is_verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// CredentialStore persists user identities. Implementations live outside the
// core; only these four operations are consumed.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	Create(ctx context.Context, identity *Identity) (*Identity, error)
	Save(ctx context.Context, identity *Identity) error
}

// Mailer delivers templated notifications; the core only needs it to carry
// the activation code out of band.
type Mailer interface {
	Send(ctx context.Context, destination string, templateName string, templateData map[string]any) error
}
