package authcore

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// IdentityContextKey is where the session middleware stores the identity.
const IdentityContextKey = "auth_identity"

// Authorize accepts the identity when its role is in the allowed set. Pure
// and synchronous; it must run strictly after authentication.
func Authorize(identity Identity, allowed ...Role) error {
	for _, role := range allowed {
		if identity.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q is not allowed to access this resource", ErrForbidden, identity.Role)
}

// RequireRoles gates a route group on the authenticated identity's role.
// Compose it after RequireSession; a request without an identity is rejected
// as unauthenticated, not forbidden.
func RequireRoles(allowed ...Role) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		identity, found := IdentityFromContext(contextGin)
		if !found {
			AbortWithError(contextGin, ErrMissingToken)
			return
		}
		if authorizeErr := Authorize(identity, allowed...); authorizeErr != nil {
			AbortWithError(contextGin, authorizeErr)
			return
		}
		contextGin.Next()
	}
}

// IdentityFromContext returns the identity attached by RequireSession.
func IdentityFromContext(contextGin *gin.Context) (Identity, bool) {
	value, exists := contextGin.Get(IdentityContextKey)
	if !exists {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	if !ok {
		return Identity{}, false
	}
	return identity, true
}
