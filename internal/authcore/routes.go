package authcore

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type activateRequest struct {
	ActivationToken string `json:"activation_token" binding:"required"`
	ActivationCode  string `json:"activation_code" binding:"required,len=4"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type socialAuthRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// MountAuthRoutes registers the public and session-scoped auth endpoints:
// register, activate, login, social-auth, refresh, logout, and me.
func MountAuthRoutes(router gin.IRouter, manager *SessionManager, activation *ActivationFlow, social SocialVerifier) {
	router.POST("/register", func(contextGin *gin.Context) {
		var inbound registerRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		activationToken, registerErr := activation.Register(contextGin.Request.Context(), inbound.Name, inbound.Email, inbound.Password)
		if registerErr != nil {
			AbortWithError(contextGin, registerErr)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"success":          true,
			"message":          fmt.Sprintf("Please check %s to activate your account.", inbound.Email),
			"activation_token": activationToken.Token,
		})
	})

	router.POST("/activate", func(contextGin *gin.Context) {
		var inbound activateRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if _, activateErr := activation.Activate(contextGin.Request.Context(), inbound.ActivationToken, inbound.ActivationCode); activateErr != nil {
			AbortWithError(contextGin, activateErr)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"success": true,
			"message": "Account activated successfully.",
		})
	})

	router.POST("/login", func(contextGin *gin.Context) {
		var inbound loginRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		pair, loginErr := manager.Login(contextGin.Request.Context(), inbound.Email, inbound.Password)
		if loginErr != nil {
			AbortWithError(contextGin, loginErr)
			return
		}
		manager.SetSessionCookies(contextGin, pair)
		contextGin.JSON(http.StatusOK, gin.H{
			"success":      true,
			"access_token": pair.AccessToken,
			"user":         pair.Identity,
		})
	})

	router.POST("/social-auth", func(contextGin *gin.Context) {
		if social == nil {
			contextGin.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "social_auth_disabled"})
			return
		}
		var inbound socialAuthRequest
		if bindErr := contextGin.ShouldBindJSON(&inbound); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		profile, verifyErr := social.Verify(contextGin.Request.Context(), inbound.IDToken)
		if verifyErr != nil {
			AbortWithError(contextGin, verifyErr)
			return
		}
		pair, socialErr := manager.SocialLogin(contextGin.Request.Context(), profile)
		if socialErr != nil {
			AbortWithError(contextGin, socialErr)
			return
		}
		manager.SetSessionCookies(contextGin, pair)
		contextGin.JSON(http.StatusOK, gin.H{
			"success":      true,
			"access_token": pair.AccessToken,
			"user":         pair.Identity,
		})
	})

	router.GET("/refresh", func(contextGin *gin.Context) {
		refreshToken := manager.RefreshTokenFromRequest(contextGin.Request)
		pair, refreshErr := manager.Refresh(contextGin.Request.Context(), refreshToken)
		if refreshErr != nil {
			AbortWithError(contextGin, refreshErr)
			return
		}
		manager.SetSessionCookies(contextGin, pair)
		contextGin.JSON(http.StatusOK, gin.H{
			"success":      true,
			"access_token": pair.AccessToken,
		})
	})

	router.GET("/logout", RequireSession(manager), func(contextGin *gin.Context) {
		identity, _ := IdentityFromContext(contextGin)
		if logoutErr := manager.Logout(contextGin.Request.Context(), identity.ID); logoutErr != nil {
			AbortWithError(contextGin, logoutErr)
			return
		}
		manager.ClearSessionCookies(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Logged out successfully.",
		})
	})

	router.GET("/me", RequireSession(manager), func(contextGin *gin.Context) {
		identity, _ := IdentityFromContext(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{
			"success": true,
			"user":    identity,
		})
	})
}
