package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// KeyRecord is a registered API key. Only the SHA-256 hash of the key is
// stored.
type KeyRecord struct {
	ID        string    `yaml:"id"`
	Hash      string    `yaml:"hash"`
	Principal string    `yaml:"principal"`
	TenantID  string    `yaml:"tenantId"`
	Roles     []string  `yaml:"roles"`
	ExpiresAt time.Time `yaml:"expiresAt"`
}

// KeyStore looks up API keys by hash.
type KeyStore interface {
	// Lookup returns nil, nil when no key matches.
	Lookup(ctx context.Context, hash string) (*KeyRecord, error)
}

// HashKey hashes a raw API key for storage and lookup.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyAuthenticator resolves raw API keys to identities.
type KeyAuthenticator struct {
	store KeyStore
	now   func() time.Time
}

// NewKeyAuthenticator creates an authenticator over store.
func NewKeyAuthenticator(store KeyStore) *KeyAuthenticator {
	return &KeyAuthenticator{store: store, now: time.Now}
}

// Authenticate returns the identity for key. It fails with
// ErrMissingCredentials, ErrInvalidCredentials or ErrCredentialsExpired; a
// store failure is returned as is.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, key string) (*Identity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingCredentials
	}

	rec, err := a.store.Lookup(ctx, HashKey(key))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrInvalidCredentials
	}

	id := &Identity{
		Principal: rec.Principal,
		TenantID:  rec.TenantID,
		Roles:     append([]string(nil), rec.Roles...),
		Method:    MethodAPIKey,
		KeyID:     rec.ID,
		ExpiresAt: rec.ExpiresAt,
	}
	if id.ExpiredAt(a.now()) {
		return nil, ErrCredentialsExpired
	}
	return id, nil
}

// MemoryKeyStore is an in-memory KeyStore.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string]KeyRecord
}

// NewMemoryKeyStore creates a store holding records.
func NewMemoryKeyStore(records ...KeyRecord) *MemoryKeyStore {
	s := &MemoryKeyStore{keys: make(map[string]KeyRecord, len(records))}
	for _, r := range records {
		s.keys[r.Hash] = r
	}
	return s
}

// Lookup retrieves a key by hash.
func (s *MemoryKeyStore) Lookup(_ context.Context, hash string) (*KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[hash]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Add registers a key record, replacing any record with the same hash.
func (s *MemoryKeyStore) Add(rec KeyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[rec.Hash] = rec
}

// Remove deletes the record with the given hash.
func (s *MemoryKeyStore) Remove(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, hash)
}

var _ KeyStore = (*MemoryKeyStore)(nil)
