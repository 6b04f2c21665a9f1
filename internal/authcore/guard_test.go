package authcore

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAuthorizeChecksRoleMembership(t *testing.T) {
	t.Parallel()

	if err := Authorize(Identity{Role: RoleUser}, RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Authorize(Identity{Role: RoleAdmin}, RoleAdmin); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}
	if err := Authorize(Identity{Role: RoleUser}, RoleUser, RoleAdmin); err != nil {
		t.Fatalf("expected user to pass a set containing user, got %v", err)
	}
}

func TestParseRoleDefaultsToUser(t *testing.T) {
	t.Parallel()

	if role := ParseRole("ADMIN"); role != RoleAdmin {
		t.Fatalf("expected admin, got %q", role)
	}
	if role := ParseRole("moderator"); role != RoleUser {
		t.Fatalf("expected unknown roles to collapse to user, got %q", role)
	}
}

func TestRequireRolesMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/admin", func(contextGin *gin.Context) {
		// Simulates RequireSession having attached an identity.
		contextGin.Set(IdentityContextKey, Identity{ID: "u1", Role: RoleUser})
	}, RequireRoles(RoleAdmin), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})
	router.GET("/unauthenticated", RequireRoles(RoleAdmin), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a plain user, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/unauthenticated", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an identity, got %d", recorder.Code)
	}
}
