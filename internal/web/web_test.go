package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/Omianju/LMS/internal/authcore"
	"github.com/Omianju/LMS/internal/userstore"
)

type recordingAvatarStore struct {
	uploads   []string
	destroyed []string
}

func (store *recordingAvatarStore) Upload(ctx context.Context, userID string, data string) (string, error) {
	store.uploads = append(store.uploads, data)
	return "https://cdn.example.com/" + userID + ".png", nil
}

func (store *recordingAvatarStore) Destroy(ctx context.Context, userID string, avatarURL string) error {
	store.destroyed = append(store.destroyed, avatarURL)
	return nil
}

type webFixture struct {
	router  *gin.Engine
	manager *authcore.SessionManager
	users   *userstore.MemoryStore
	avatars *recordingAvatarStore
	config  authcore.Config
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	configuration := authcore.Config{
		AccessTokenSecret:  []byte("access-secret"),
		RefreshTokenSecret: []byte("refresh-secret"),
		ActivationSecret:   []byte("activation-secret"),
		AllowInsecureHTTP:  true,
	}.Defaults()
	clock := authcore.NewSystemClock()
	issuer := authcore.NewTokenIssuer(configuration, clock)
	users := userstore.NewMemoryStore()
	sessions := authcore.NewMemorySessionCache(clock)
	logger := zaptest.NewLogger(t)
	manager := authcore.NewSessionManager(configuration, issuer, users, sessions, clock, logger, nil)
	avatars := &recordingAvatarStore{}

	router := gin.New()
	MountProfileRoutes(router, manager, users, avatars, logger)
	MountAdminRoutes(router.Group("/admin"), manager, users, logger)
	return &webFixture{router: router, manager: manager, users: users, avatars: avatars, config: configuration}
}

func (fixture *webFixture) seedAndLogin(t *testing.T, email string, password string, role authcore.Role) (authcore.Identity, string) {
	t.Helper()
	hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if hashErr != nil {
		t.Fatalf("hash error: %v", hashErr)
	}
	created, createErr := fixture.users.Create(context.Background(), &authcore.Identity{
		Name:         "Seeded User",
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsVerified:   true,
	})
	if createErr != nil {
		t.Fatalf("seed error: %v", createErr)
	}
	pair, loginErr := fixture.manager.Login(context.Background(), email, password)
	if loginErr != nil {
		t.Fatalf("login error: %v", loginErr)
	}
	return *created, pair.AccessToken
}

func (fixture *webFixture) do(t *testing.T, method string, path string, accessToken string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			t.Fatalf("marshal error: %v", marshalErr)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		request.AddCookie(&http.Cookie{Name: fixture.config.AccessCookieName, Value: accessToken, Path: "/"})
	}
	recorder := httptest.NewRecorder()
	fixture.router.ServeHTTP(recorder, request)
	return recorder
}

func TestUpdateInfoRenamesAndRefreshesSession(t *testing.T) {
	fixture := newWebFixture(t)
	_, accessToken := fixture.seedAndLogin(t, "ana@x.com", "secret1", authcore.RoleUser)

	response := fixture.do(t, http.MethodPut, "/me/info", accessToken, gin.H{
		"name": "Ana Lima", "email": "ana.lima@x.com",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	// The cached session snapshot must already reflect the mutation.
	cached, validateErr := fixture.manager.ValidateRequest(context.Background(), accessToken)
	if validateErr != nil {
		t.Fatalf("validate error: %v", validateErr)
	}
	if cached.Email != "ana.lima@x.com" || cached.Name != "Ana Lima" {
		t.Fatalf("session snapshot lags the store: %+v", cached)
	}
}

func TestProfileMutationsFailWhenIdentityWasDeleted(t *testing.T) {
	fixture := newWebFixture(t)
	seeded, accessToken := fixture.seedAndLogin(t, "ana@x.com", "secret1", authcore.RoleUser)

	// Remove the identity directly; the session record stays behind.
	if deleteErr := fixture.users.Delete(context.Background(), seeded.ID); deleteErr != nil {
		t.Fatalf("delete error: %v", deleteErr)
	}

	for _, request := range []struct {
		path string
		body gin.H
	}{
		{"/me/info", gin.H{"name": "Ghost"}},
		{"/me/password", gin.H{"old_password": "secret1", "new_password": "changed1"}},
		{"/me/avatar", gin.H{"avatar": "blob"}},
	} {
		response := fixture.do(t, http.MethodPut, request.path, accessToken, request.body)
		if response.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s after deletion, got %d: %s", request.path, response.Code, response.Body.String())
		}
		var payload struct {
			Error string `json:"error"`
		}
		if decodeErr := json.Unmarshal(response.Body.Bytes(), &payload); decodeErr != nil {
			t.Fatalf("decode error: %v", decodeErr)
		}
		if payload.Error != authcore.ErrSessionExpired.Error() {
			t.Fatalf("expected %q for %s, got %q", authcore.ErrSessionExpired.Error(), request.path, payload.Error)
		}
	}
}

func TestUpdateInfoRejectsTakenEmail(t *testing.T) {
	fixture := newWebFixture(t)
	fixture.seedAndLogin(t, "other@x.com", "secret1", authcore.RoleUser)
	_, accessToken := fixture.seedAndLogin(t, "ana@x.com", "secret1", authcore.RoleUser)

	response := fixture.do(t, http.MethodPut, "/me/info", accessToken, gin.H{"email": "OTHER@x.com"})
	if response.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a taken email, got %d", response.Code)
	}
}

func TestUpdatePasswordFlow(t *testing.T) {
	fixture := newWebFixture(t)
	_, accessToken := fixture.seedAndLogin(t, "ana@x.com", "secret1", authcore.RoleUser)

	wrongOld := fixture.do(t, http.MethodPut, "/me/password", accessToken, gin.H{
		"old_password": "not-it", "new_password": "changed1",
	})
	if wrongOld.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong old password, got %d", wrongOld.Code)
	}

	response := fixture.do(t, http.MethodPut, "/me/password", accessToken, gin.H{
		"old_password": "secret1", "new_password": "changed1",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	if _, oldLoginErr := fixture.manager.Login(context.Background(), "ana@x.com", "secret1"); !errors.Is(oldLoginErr, authcore.ErrInvalidCredential) {
		t.Fatalf("expected the old password to stop working, got %v", oldLoginErr)
	}
	if _, newLoginErr := fixture.manager.Login(context.Background(), "ana@x.com", "changed1"); newLoginErr != nil {
		t.Fatalf("expected the new password to work, got %v", newLoginErr)
	}
}

func TestUpdatePasswordRejectedForSocialAccount(t *testing.T) {
	fixture := newWebFixture(t)

	pair, socialErr := fixture.manager.SocialLogin(context.Background(), authcore.SocialProfile{
		Name: "Sam", Email: "sam@x.com",
	})
	if socialErr != nil {
		t.Fatalf("social login error: %v", socialErr)
	}

	response := fixture.do(t, http.MethodPut, "/me/password", pair.AccessToken, gin.H{
		"old_password": "anything", "new_password": "changed1",
	})
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a passwordless account, got %d", response.Code)
	}
}

func TestUpdateAvatarDestroysPreviousImage(t *testing.T) {
	fixture := newWebFixture(t)
	seeded, accessToken := fixture.seedAndLogin(t, "ana@x.com", "secret1", authcore.RoleUser)

	first := fixture.do(t, http.MethodPut, "/me/avatar", accessToken, gin.H{"avatar": "blob-one"})
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	if len(fixture.avatars.destroyed) != 0 {
		t.Fatalf("no previous avatar should be destroyed on first upload")
	}

	second := fixture.do(t, http.MethodPut, "/me/avatar", accessToken, gin.H{"avatar": "blob-two"})
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	if len(fixture.avatars.destroyed) != 1 {
		t.Fatalf("expected the first avatar to be destroyed, got %v", fixture.avatars.destroyed)
	}

	reloaded, _ := fixture.users.FindByID(context.Background(), seeded.ID)
	if reloaded.AvatarURL != "https://cdn.example.com/"+seeded.ID+".png" {
		t.Fatalf("avatar url not persisted: %q", reloaded.AvatarURL)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	fixture := newWebFixture(t)
	_, memberToken := fixture.seedAndLogin(t, "member@x.com", "secret1", authcore.RoleUser)

	forbidden := fixture.do(t, http.MethodGet, "/admin/users", memberToken, nil)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin, got %d", forbidden.Code)
	}

	anonymous := fixture.do(t, http.MethodGet, "/admin/users", "", nil)
	if anonymous.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", anonymous.Code)
	}
}

func TestAdminListUsers(t *testing.T) {
	fixture := newWebFixture(t)
	fixture.seedAndLogin(t, "member@x.com", "secret1", authcore.RoleUser)
	_, adminToken := fixture.seedAndLogin(t, "root@x.com", "secret1", authcore.RoleAdmin)

	response := fixture.do(t, http.MethodGet, "/admin/users", adminToken, nil)
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}
	var payload struct {
		Users []authcore.Identity `json:"users"`
	}
	if decodeErr := json.Unmarshal(response.Body.Bytes(), &payload); decodeErr != nil {
		t.Fatalf("decode error: %v", decodeErr)
	}
	if len(payload.Users) != 2 {
		t.Fatalf("expected two users, got %d", len(payload.Users))
	}
}

func TestAdminRoleUpdate(t *testing.T) {
	fixture := newWebFixture(t)
	member, memberToken := fixture.seedAndLogin(t, "member@x.com", "secret1", authcore.RoleUser)
	_, adminToken := fixture.seedAndLogin(t, "root@x.com", "secret1", authcore.RoleAdmin)

	response := fixture.do(t, http.MethodPut, "/admin/users/role", adminToken, gin.H{
		"id": member.ID, "role": "admin",
	})
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	// The promoted user's live session carries the new role immediately.
	promoted, validateErr := fixture.manager.ValidateRequest(context.Background(), memberToken)
	if validateErr != nil {
		t.Fatalf("validate error: %v", validateErr)
	}
	if promoted.Role != authcore.RoleAdmin {
		t.Fatalf("expected the cached role to be admin, got %s", promoted.Role)
	}

	missing := fixture.do(t, http.MethodPut, "/admin/users/role", adminToken, gin.H{
		"id": "ghost", "role": "admin",
	})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown user, got %d", missing.Code)
	}
}

func TestAdminDeleteRevokesSession(t *testing.T) {
	fixture := newWebFixture(t)
	member, memberToken := fixture.seedAndLogin(t, "member@x.com", "secret1", authcore.RoleUser)
	_, adminToken := fixture.seedAndLogin(t, "root@x.com", "secret1", authcore.RoleAdmin)

	response := fixture.do(t, http.MethodDelete, "/admin/users/"+member.ID, adminToken, nil)
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	if found, _ := fixture.users.FindByID(context.Background(), member.ID); found != nil {
		t.Fatalf("expected the user to be gone, got %+v", found)
	}
	if _, validateErr := fixture.manager.ValidateRequest(context.Background(), memberToken); !errors.Is(validateErr, authcore.ErrSessionExpired) {
		t.Fatalf("expected the deleted user's session to be revoked, got %v", validateErr)
	}

	missing := fixture.do(t, http.MethodDelete, "/admin/users/ghost", adminToken, nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown user, got %d", missing.Code)
	}
}
