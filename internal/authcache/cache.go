// Package authcache remembers recent credential resolutions so repeated
// requests skip the identity provider and the account store.
package authcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/identity"
)

const DefaultTTL = 5 * time.Minute

// Entry is one cached resolution.
type Entry struct {
	Identity    identity.Identity `json:"identity"`
	Account     directory.Account `json:"account"`
	AdminOrgIDs []string          `json:"adminOrgIds"`
	// ResolvedAt is when the account read behind this entry started. Zero
	// stores unconditionally.
	ResolvedAt time.Time `json:"resolvedAt,omitempty"`
}

// Cache is best-effort: backend failures degrade to a miss and are never
// returned to callers.
type Cache interface {
	Lookup(ctx context.Context, credential string) (Entry, bool)
	// Store saves e for ttl; ttl <= 0 means the cache default. An entry whose
	// account was invalidated at or after e.ResolvedAt is dropped, so a
	// resolution racing a membership change cannot outlive it.
	Store(ctx context.Context, credential string, e Entry, ttl time.Duration)
	Invalidate(ctx context.Context, credential string)
	// InvalidateAccount drops every entry resolved to accountID.
	InvalidateAccount(ctx context.Context, accountID string)
	InvalidateAll(ctx context.Context)
}

// Key is the digest under which a credential is cached. Raw credentials are
// never used as keys.
func Key(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Noop never caches.
type Noop struct{}

func (Noop) Lookup(context.Context, string) (Entry, bool)        { return Entry{}, false }
func (Noop) Store(context.Context, string, Entry, time.Duration) {}
func (Noop) Invalidate(context.Context, string)                  {}
func (Noop) InvalidateAccount(context.Context, string)           {}
func (Noop) InvalidateAll(context.Context)                       {}
