// Package session implements the in-memory challenge/session table for
// interactive (user-auth-gated) decryption flows (§3.5, §5): PreQuery
// issues a challenge, the caller proves user presence out of band, Query
// presents the matching session token, and PostQuery tears it down.
//
// Sessions are process-local and never persisted, mirroring the teacher's
// internal/auth session table (internal/auth/session.go) but scoped to
// one decrypt operation's lifetime instead of a login cookie's.
package session

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// ChallengeSize matches tag.AuthChallengeLen (32 bytes).
const ChallengeSize = 32

// TokenSize matches tag.AuthTokenLen (280 bytes): the session-bound token
// minted alongside a challenge and required back at Query time.
const TokenSize = 280

// DefaultMaxAge bounds how long an unconsumed session may live, per §3.5.
const DefaultMaxAge = 60 * time.Second

// Caller identifies the owner of a session, scoping removal by owner.
type Caller struct {
	UserID int32
	Owner  string
}

// entry is one outstanding interactive-decrypt session.
type entry struct {
	challenge           []byte
	caller              Caller
	conditionFingerprint string // opaque key identifying the query this session authorizes
	needDeviceUnlocked   bool
	expiresAt            time.Time
	tokenHash            [sha256.Size]byte // hash of the token minted alongside challenge, per Create
}

// Table is the process-wide session registry. All methods are safe for
// concurrent use.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxAge  time.Duration
}

// NewTable constructs an empty Table. maxAge overrides DefaultMaxAge when
// positive (wired from config's SessionMaxAge).
func NewTable(maxAge time.Duration) *Table {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Table{entries: make(map[string]*entry), maxAge: maxAge}
}

// Create issues a fresh challenge and a fresh token for caller/fingerprint
// and records the session keyed by the challenge, returning both to hand
// back to the application (§5, PreQuery). Only the token's hash is
// retained, mirroring the teacher's hash-then-compare credential pattern
// (internal/auth/pat.go's hashPAT). needDeviceUnlocked marks sessions that
// must be dropped on a screen-off event (C9).
func (t *Table) Create(caller Caller, conditionFingerprint string, needDeviceUnlocked bool) (challenge, token []byte, err error) {
	challenge = make([]byte, ChallengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return nil, nil, asseterr.Wrap(asseterr.CryptoError, err, "generating session challenge")
	}
	token = make([]byte, TokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, nil, asseterr.Wrap(asseterr.CryptoError, err, "generating session token")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[string(challenge)] = &entry{
		challenge:            challenge,
		caller:               caller,
		conditionFingerprint: conditionFingerprint,
		needDeviceUnlocked:   needDeviceUnlocked,
		expiresAt:            time.Now().Add(t.maxAge),
		tokenHash:            sha256.Sum256(token),
	}
	return challenge, token, nil
}

// Authorize looks up the session matching challenge, validating caller,
// fingerprint and expiry like the teacher's cookie-session lookup, and
// additionally requires token to be the one Create minted for this
// session (§4.4/§4.11: execCrypt succeeds only if the token authorizes
// the session's challenge). A token mismatch reports AccessDenied without
// touching the session, so the caller may retry; it does not remove the
// session on success either. Authorize deletes a session only when it
// finds it expired; otherwise it stays until PostQuery (§5) or a C9
// reaction removes it.
func (t *Table) Authorize(challenge []byte, caller Caller, conditionFingerprint string, token []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[string(challenge)]
	if !ok {
		return asseterr.New(asseterr.NotFound, "no matching session")
	}
	if time.Now().After(e.expiresAt) {
		delete(t.entries, string(challenge))
		return asseterr.New(asseterr.NotFound, "session expired")
	}
	if e.caller != caller || e.conditionFingerprint != conditionFingerprint {
		return asseterr.New(asseterr.StatusMismatch, "session does not match this query")
	}
	tokenHash := sha256.Sum256(token)
	if subtle.ConstantTimeCompare(tokenHash[:], e.tokenHash[:]) != 1 {
		return asseterr.New(asseterr.AccessDenied, "auth token does not authorize this session")
	}
	return nil
}

// Remove deletes the session for challenge, per §5's PostQuery.
func (t *Table) Remove(challenge []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, string(challenge))
}

// RemoveByCaller drops every session belonging to caller, used by the
// package-removed reaction (C9).
func (t *Table) RemoveByCaller(caller Caller) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		if e.caller == caller {
			delete(t.entries, k)
		}
	}
}

// RemoveNeedDeviceUnlocked drops every session flagged needDeviceUnlocked,
// used on the screen-off reaction (C9, §4.9).
func (t *Table) RemoveNeedDeviceUnlocked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range t.entries {
		if e.needDeviceUnlocked {
			delete(t.entries, k)
		}
	}
}

// MaxExpireDuration reports the configured session lifetime.
func (t *Table) MaxExpireDuration() time.Duration { return t.maxAge }

// Len reports the number of live sessions, used by C10's idle-unload gate
// (a service must not unload while interactive sessions are outstanding).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep removes every expired session, intended to run on a periodic
// ticker alongside C9's charging/periodic reactor hook.
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	n := 0
	for k, e := range t.entries {
		if now.After(e.expiresAt) {
			delete(t.entries, k)
			n++
		}
	}
	return n
}
