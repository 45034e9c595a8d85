// Package auth turns a bearer credential into an authenticated Principal:
// cache lookup, then identity verification and account resolution on a miss.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"lighthouse-crm/internal/accounts"
	"lighthouse-crm/internal/authcache"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/identity"
	"lighthouse-crm/internal/metrics"
	"lighthouse-crm/internal/tenancy"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Identity    identity.Identity
	Account     directory.Account
	AdminOrgIDs []string
}

func (p Principal) SubjectID() string { return p.Account.ID }

func (p Principal) Membership() tenancy.Membership {
	return p.Account.Membership(p.AdminOrgIDs)
}

// Resolver is the account side of authentication.
type Resolver interface {
	Resolve(ctx context.Context, id identity.Identity) (directory.Account, error)
	AdministeredOrgIDs(ctx context.Context, accountID string) ([]string, error)
}

var _ Resolver = (*accounts.Resolver)(nil)

type Authenticator struct {
	verifier identity.Verifier
	resolver Resolver
	cache    authcache.Cache
	ttl      time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewAuthenticator(v identity.Verifier, r Resolver, cache authcache.Cache, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *Authenticator {
	if cache == nil {
		cache = authcache.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{verifier: v, resolver: r, cache: cache, ttl: ttl, metrics: m, log: log, now: time.Now}
}

// Authenticate resolves credential to a Principal. Verification and
// resolution run only on a cache miss. Identities decoded without signature
// verification are never cached, so a recovered provider re-verifies them.
// The cache refuses a resolution that started before its account was last
// invalidated.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		a.metrics.IncAuthFailure(failureKind(identity.ErrInvalidCredential))
		return Principal{}, identity.ErrInvalidCredential
	}

	if e, ok := a.cache.Lookup(ctx, credential); ok {
		a.metrics.IncAuthCacheLookup("hit")
		return Principal{Identity: e.Identity, Account: e.Account, AdminOrgIDs: e.AdminOrgIDs}, nil
	}
	a.metrics.IncAuthCacheLookup("miss")

	resolvedAt := a.now()
	id, err := a.verifier.Verify(ctx, credential)
	if err != nil {
		a.metrics.IncAuthFailure(failureKind(err))
		return Principal{}, err
	}
	acct, err := a.resolver.Resolve(ctx, id)
	if err != nil {
		a.metrics.IncAuthFailure(failureKind(err))
		return Principal{}, err
	}
	adminIDs, err := a.resolver.AdministeredOrgIDs(ctx, acct.ID)
	if err != nil {
		a.metrics.IncAuthFailure(failureKind(err))
		return Principal{}, err
	}

	p := Principal{Identity: id, Account: acct, AdminOrgIDs: adminIDs}
	if !id.Unverified {
		a.cache.Store(ctx, credential, authcache.Entry{
			Identity:    id,
			Account:     acct,
			AdminOrgIDs: adminIDs,
			ResolvedAt:  resolvedAt,
		}, a.ttl)
	}
	return p, nil
}

// Forget drops the cached resolution of credential.
func (a *Authenticator) Forget(ctx context.Context, credential string) {
	a.cache.Invalidate(ctx, strings.TrimSpace(credential))
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, identity.ErrVerifierUnavailable):
		return "verifier_unavailable"
	case errors.Is(err, accounts.ErrMissingEmail):
		return "missing_email"
	case errors.Is(err, accounts.ErrAccountNotFound):
		return "account_not_found"
	default:
		return "internal"
	}
}
