// Package keymgr stands in for the HUKS hardware keystore (§3.4): it
// derives and caches one AES-256 root key per
// (user, owner, auth type, accessibility) alias. It also exposes a
// bcrypt-based credential-hash helper for RequirePasswordSet-protected
// aliases, grounded on the teacher's internal/auth/login.go password-check
// idiom; the real OS account/credential subsystem that would call it is
// out of scope (§1), so nothing in this pipeline invokes it yet.
package keymgr

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Alias identifies one derived key, per §3.4's deterministic naming rule.
type Alias struct {
	UserID        int32
	Owner         string
	AuthType      uint32
	Accessibility uint32
}

// String renders alias using the original's "{user_id}_{uid}_{auth_type}_{access_type}" shape.
func (a Alias) String() string {
	return fmt.Sprintf("%d_%s_%d_%d", a.UserID, a.Owner, a.AuthType, a.Accessibility)
}

// PasswordVerifier checks a device-unlock secret against its stored hash,
// used to gate RequirePasswordSet-protected aliases.
type PasswordVerifier interface {
	VerifyPassword(userID int32, password []byte) error
}

// Manager derives and caches root keys. It never persists plaintext key
// material outside the in-memory cache; a production HUKS backend would
// replace this cache with hardware-sealed storage while keeping the same
// interface.
type Manager struct {
	masterSecret []byte // stands in for the hardware root of trust

	mu    sync.RWMutex
	cache map[string][]byte

	group singleflight.Group
}

// NewManager constructs a Manager. masterSecret stands in for the
// hardware-sealed root key that a real HUKS would never expose to
// application code; here it is provided so the whole service can run
// in-process without a hardware dependency.
func NewManager(masterSecret []byte) *Manager {
	return &Manager{
		masterSecret: masterSecret,
		cache:        make(map[string][]byte),
	}
}

// GetOrCreate returns alias's derived key, creating and caching it on
// first use. Concurrent callers deriving the same alias collapse onto a
// single derivation via singleflight, per §3.4's idempotent-creation
// requirement.
func (m *Manager) GetOrCreate(alias Alias) ([]byte, error) {
	key := alias.String()

	m.mu.RLock()
	if k, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return k, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.RLock()
		if k, ok := m.cache[key]; ok {
			m.mu.RUnlock()
			return k, nil
		}
		m.mu.RUnlock()

		derived, err := m.derive(key)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cache[key] = derived
		m.mu.Unlock()
		return derived, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (m *Manager) derive(info string) ([]byte, error) {
	hk := hkdf.New(sha256.New, m.masterSecret, nil, []byte(info))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hk, out); err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "deriving key for alias %s", info)
	}
	return out, nil
}

// DeleteByOwner evicts every cached key belonging to owner under userID.
// The package-removed reaction (C9) calls it; the user-removed reaction
// does not, and leaves that user's cached keys in place.
func (m *Manager) DeleteByOwner(userID int32, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("%d_%s_", userID, owner)
	for k := range m.cache {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.cache, k)
		}
	}
}

// RequirePassword gates access to a RequirePasswordSet-protected alias by
// verifying password against verifier, per §3.4/§4.4. The decrypt path does
// not call it, and no other code in this repository does either: it is a
// credential-check helper for callers that hold their own PasswordVerifier.
func RequirePassword(verifier PasswordVerifier, userID int32, password []byte) error {
	if verifier == nil {
		return asseterr.New(asseterr.AccessDenied, "no password verifier configured")
	}
	if err := verifier.VerifyPassword(userID, password); err != nil {
		return asseterr.Wrap(asseterr.AccessDenied, err, "password verification failed")
	}
	return nil
}

// HashPassword hashes a plaintext device-unlock secret for storage,
// mirroring the teacher's bcrypt-based credential hashing.
func HashPassword(password []byte) (string, error) {
	h, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", asseterr.Wrap(asseterr.CryptoError, err, "hashing password")
	}
	return string(h), nil
}

// CompareHashAndPassword is a thin testability wrapper around bcrypt's
// constant-time comparison.
func CompareHashAndPassword(hash string, password []byte) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), password); err != nil {
		return asseterr.Wrap(asseterr.AccessDenied, err, "password mismatch")
	}
	return nil
}

// RandomMasterSecret generates a fresh random root secret, used when no
// hardware-backed secret is available (e.g. first run, tests).
func RandomMasterSecret() ([]byte, error) {
	b := make([]byte, KeySize)
	if _, err := rand.Read(b); err != nil {
		return nil, asseterr.Wrap(asseterr.CryptoError, err, "generating master secret")
	}
	return b, nil
}

// LoadOrCreateMasterSecret reads the root secret persisted at path,
// generating and writing a fresh one with 0600 permissions on first run.
// A real device seals this in HUKS; this stand-in keeps it on disk next
// to the rest of the service's local state.
func LoadOrCreateMasterSecret(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil && len(b) == KeySize {
		return b, nil
	}

	secret, err := RandomMasterSecret()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, asseterr.Wrap(asseterr.FileOperationError, err, "creating key directory")
	}
	if err := os.WriteFile(path, secret, 0600); err != nil {
		return nil, asseterr.Wrap(asseterr.FileOperationError, err, "persisting master secret")
	}
	return secret, nil
}
