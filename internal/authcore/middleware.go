package authcore

import (
	"github.com/gin-gonic/gin"
)

// RequireSession validates the access cookie against the session cache and
// attaches the cached identity to the request context.
func RequireSession(manager *SessionManager) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		accessToken := manager.AccessTokenFromRequest(contextGin.Request)
		identity, validateErr := manager.ValidateRequest(contextGin.Request.Context(), accessToken)
		if validateErr != nil {
			AbortWithError(contextGin, validateErr)
			return
		}
		contextGin.Set(IdentityContextKey, identity)
		contextGin.Next()
	}
}
