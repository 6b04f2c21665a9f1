package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Omianju/LMS/internal/authcore"
)

// UserDirectory extends the core credential contract with the listing and
// deletion operations the management surfaces need.
type UserDirectory interface {
	authcore.CredentialStore
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]authcore.Identity, error)
}

// AvatarStore is the external object-storage collaborator for profile
// pictures. Upload returns the public URL of the stored image.
type AvatarStore interface {
	Upload(ctx context.Context, userID string, data string) (string, error)
	Destroy(ctx context.Context, userID string, avatarURL string) error
}

// PassthroughAvatarStore treats the submitted data as an already-hosted URL.
// It stands in for the CDN-backed store, which lives outside this service.
type PassthroughAvatarStore struct{}

// Upload returns the submitted data unchanged.
func (PassthroughAvatarStore) Upload(ctx context.Context, userID string, data string) (string, error) {
	return data, nil
}

// Destroy is a no-op for externally hosted URLs.
func (PassthroughAvatarStore) Destroy(ctx context.Context, userID string, avatarURL string) error {
	return nil
}

type updateInfoRequest struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type updateAvatarRequest struct {
	Avatar string `json:"avatar" binding:"required"`
}

type updateRoleRequest struct {
	ID   string `json:"id" binding:"required"`
	Role string `json:"role" binding:"required,oneof=user admin"`
}

// MountProfileRoutes registers the self-service profile endpoints. Every
// mutation rewrites the session record so the cached identity never lags the
// credential store.
func MountProfileRoutes(router gin.IRouter, manager *authcore.SessionManager, users UserDirectory, avatars AvatarStore, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router.PUT("/me/info", authcore.RequireSession(manager), func(contextGin *gin.Context) {
		identity, _ := authcore.IdentityFromContext(contextGin)
		var inbound updateInfoRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}

		current, findErr := users.FindByID(contextGin.Request.Context(), identity.ID)
		if findErr != nil {
			abortStoreFailure(contextGin, logger, findErr)
			return
		}
		if current == nil {
			// The identity was deleted while its session record lingered.
			authcore.AbortWithError(contextGin, authcore.ErrSessionExpired)
			return
		}
		if inbound.Email != "" && !strings.EqualFold(inbound.Email, current.Email) {
			existing, lookupErr := users.FindByEmail(contextGin.Request.Context(), inbound.Email)
			if lookupErr != nil {
				abortStoreFailure(contextGin, logger, lookupErr)
				return
			}
			if existing != nil {
				authcore.AbortWithError(contextGin, authcore.ErrEmailTaken)
				return
			}
			current.Email = strings.ToLower(inbound.Email)
		}
		if inbound.Name != "" {
			current.Name = inbound.Name
		}

		if saveErr := users.Save(contextGin.Request.Context(), current); saveErr != nil {
			abortStoreFailure(contextGin, logger, saveErr)
			return
		}
		if cacheErr := manager.InvalidateOnMutation(contextGin.Request.Context(), *current); cacheErr != nil {
			abortStoreFailure(contextGin, logger, cacheErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "user": current})
	})

	router.PUT("/me/password", authcore.RequireSession(manager), func(contextGin *gin.Context) {
		identity, _ := authcore.IdentityFromContext(contextGin)
		var inbound updatePasswordRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}

		current, findErr := users.FindByID(contextGin.Request.Context(), identity.ID)
		if findErr != nil {
			abortStoreFailure(contextGin, logger, findErr)
			return
		}
		if current == nil {
			authcore.AbortWithError(contextGin, authcore.ErrSessionExpired)
			return
		}
		if current.PasswordHash == "" {
			// Social-auth accounts have no password to change.
			authcore.AbortWithError(contextGin, authcore.ErrInvalidCredential)
			return
		}
		if compareErr := bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(inbound.OldPassword)); compareErr != nil {
			authcore.AbortWithError(contextGin, authcore.ErrInvalidCredential)
			return
		}
		newHash, hashErr := bcrypt.GenerateFromPassword([]byte(inbound.NewPassword), bcrypt.DefaultCost)
		if hashErr != nil {
			abortStoreFailure(contextGin, logger, hashErr)
			return
		}
		current.PasswordHash = string(newHash)

		if saveErr := users.Save(contextGin.Request.Context(), current); saveErr != nil {
			abortStoreFailure(contextGin, logger, saveErr)
			return
		}
		if cacheErr := manager.InvalidateOnMutation(contextGin.Request.Context(), *current); cacheErr != nil {
			abortStoreFailure(contextGin, logger, cacheErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	router.PUT("/me/avatar", authcore.RequireSession(manager), func(contextGin *gin.Context) {
		identity, _ := authcore.IdentityFromContext(contextGin)
		var inbound updateAvatarRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}

		current, findErr := users.FindByID(contextGin.Request.Context(), identity.ID)
		if findErr != nil {
			abortStoreFailure(contextGin, logger, findErr)
			return
		}
		if current == nil {
			authcore.AbortWithError(contextGin, authcore.ErrSessionExpired)
			return
		}
		if current.AvatarURL != "" {
			if destroyErr := avatars.Destroy(contextGin.Request.Context(), current.ID, current.AvatarURL); destroyErr != nil {
				abortStoreFailure(contextGin, logger, destroyErr)
				return
			}
		}
		avatarURL, uploadErr := avatars.Upload(contextGin.Request.Context(), current.ID, inbound.Avatar)
		if uploadErr != nil {
			abortStoreFailure(contextGin, logger, uploadErr)
			return
		}
		current.AvatarURL = avatarURL

		if saveErr := users.Save(contextGin.Request.Context(), current); saveErr != nil {
			abortStoreFailure(contextGin, logger, saveErr)
			return
		}
		if cacheErr := manager.InvalidateOnMutation(contextGin.Request.Context(), *current); cacheErr != nil {
			abortStoreFailure(contextGin, logger, cacheErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "user": current})
	})
}

// MountAdminRoutes registers the admin-only user management endpoints.
func MountAdminRoutes(router gin.IRouter, manager *authcore.SessionManager, users UserDirectory, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	adminOnly := router.Group("", authcore.RequireSession(manager), authcore.RequireRoles(authcore.RoleAdmin))

	adminOnly.GET("/users", func(contextGin *gin.Context) {
		identities, listErr := users.List(contextGin.Request.Context())
		if listErr != nil {
			abortStoreFailure(contextGin, logger, listErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "users": identities})
	})

	adminOnly.PUT("/users/role", func(contextGin *gin.Context) {
		var inbound updateRoleRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		current, findErr := users.FindByID(contextGin.Request.Context(), inbound.ID)
		if findErr != nil {
			abortStoreFailure(contextGin, logger, findErr)
			return
		}
		if current == nil {
			authcore.AbortWithError(contextGin, authcore.ErrUserNotFound)
			return
		}
		current.Role = authcore.ParseRole(inbound.Role)
		if saveErr := users.Save(contextGin.Request.Context(), current); saveErr != nil {
			abortStoreFailure(contextGin, logger, saveErr)
			return
		}
		if cacheErr := manager.InvalidateOnMutation(contextGin.Request.Context(), *current); cacheErr != nil {
			abortStoreFailure(contextGin, logger, cacheErr)
			return
		}
		logger.Info("user role updated",
			zap.String("user_id", current.ID),
			zap.String("role", string(current.Role)),
		)
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "user": current})
	})

	adminOnly.DELETE("/users/:id", func(contextGin *gin.Context) {
		userID := contextGin.Param("id")
		if deleteErr := users.Delete(contextGin.Request.Context(), userID); deleteErr != nil {
			if authcore.HTTPStatus(deleteErr) == http.StatusNotFound {
				authcore.AbortWithError(contextGin, deleteErr)
				return
			}
			abortStoreFailure(contextGin, logger, deleteErr)
			return
		}
		if logoutErr := manager.Logout(contextGin.Request.Context(), userID); logoutErr != nil {
			abortStoreFailure(contextGin, logger, logoutErr)
			return
		}
		logger.Info("user deleted", zap.String("user_id", userID))
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully."})
	})
}

func abortStoreFailure(contextGin *gin.Context, logger *zap.Logger, err error) {
	if err != nil {
		logger.Error("user store failure", zap.Error(err))
	}
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
