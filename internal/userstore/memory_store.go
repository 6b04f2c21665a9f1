package userstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Omianju/LMS/internal/authcore"
)

// MemoryStore is an in-memory CredentialStore intended for tests and dev.
type MemoryStore struct {
	mutex   sync.Mutex
	byID    map[string]authcore.Identity
	byEmail map[string]string
}

var _ authcore.CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]authcore.Identity),
		byEmail: make(map[string]string),
	}
}

// FindByEmail returns the identity for email, or nil when none exists.
func (store *MemoryStore) FindByEmail(ctx context.Context, email string) (*authcore.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	id, ok := store.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	identity := store.byID[id]
	return &identity, nil
}

// FindByID returns the identity for id, or nil when none exists.
func (store *MemoryStore) FindByID(ctx context.Context, id string) (*authcore.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	identity, ok := store.byID[id]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

// Create inserts a new identity, assigning an id when none is set.
func (store *MemoryStore) Create(ctx context.Context, identity *authcore.Identity) (*authcore.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	stored := *identity
	stored.Email = strings.ToLower(stored.Email)
	if _, exists := store.byEmail[stored.Email]; exists {
		return nil, authcore.ErrEmailTaken
	}
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	store.byID[stored.ID] = stored
	store.byEmail[stored.Email] = stored.ID
	result := stored
	return &result, nil
}

// Save persists every mutable field of an existing identity.
func (store *MemoryStore) Save(ctx context.Context, identity *authcore.Identity) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	existing, ok := store.byID[identity.ID]
	if !ok {
		return authcore.ErrUserNotFound
	}
	updated := *identity
	updated.Email = strings.ToLower(updated.Email)
	if ownerID, taken := store.byEmail[updated.Email]; taken && ownerID != updated.ID {
		return authcore.ErrEmailTaken
	}
	delete(store.byEmail, existing.Email)
	store.byID[updated.ID] = updated
	store.byEmail[updated.Email] = updated.ID
	return nil
}

// Delete removes the identity for id.
func (store *MemoryStore) Delete(ctx context.Context, id string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	existing, ok := store.byID[id]
	if !ok {
		return authcore.ErrUserNotFound
	}
	delete(store.byID, id)
	delete(store.byEmail, existing.Email)
	return nil
}

// List returns every identity ordered by creation time, newest first.
func (store *MemoryStore) List(ctx context.Context) ([]authcore.Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	identities := make([]authcore.Identity, 0, len(store.byID))
	for _, identity := range store.byID {
		identities = append(identities, identity)
	}
	sort.Slice(identities, func(left, right int) bool {
		return identities[left].CreatedAt.After(identities[right].CreatedAt)
	})
	return identities, nil
}
