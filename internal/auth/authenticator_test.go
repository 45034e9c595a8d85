package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/accounts"
	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/authcache"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/identity"
	"lighthouse-crm/internal/orgs"
)

type countingVerifier struct {
	calls atomic.Int32
	ids   map[string]identity.Identity
	err   error
}

func (v *countingVerifier) Verify(_ context.Context, credential string) (identity.Identity, error) {
	v.calls.Add(1)
	if v.err != nil {
		return identity.Identity{}, v.err
	}
	id, ok := v.ids[credential]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	return id, nil
}

func newAuthenticator(v identity.Verifier) (*Authenticator, *authcache.Memory, *directory.MemoryStore) {
	store := directory.NewMemoryStore()
	res := accounts.NewResolver(store, audit.NewService(audit.NewMemoryRepo(), nil), accounts.DefaultPublicDomains, nil)
	cache := authcache.NewMemory(0)
	return NewAuthenticator(v, res, cache, 0, nil, nil), cache, store
}

func TestAuthenticate_CachesResolution(t *testing.T) {
	v := &countingVerifier{ids: map[string]identity.Identity{
		"tok-alice": {SubjectID: "a", Email: "alice@example.com", Name: "Alice"},
	}}
	a, _, _ := newAuthenticator(v)
	ctx := context.Background()

	first, err := a.Authenticate(ctx, "tok-alice")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first.AdminOrgIDs) != 1 || first.AdminOrgIDs[0] != first.Account.OrgIDs[0] {
		t.Fatalf("alice should administer her provisioned org: %+v", first)
	}
	second, err := a.Authenticate(ctx, "tok-alice")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Account.ID != first.Account.ID {
		t.Fatalf("cached principal differs")
	}
	if got := v.calls.Load(); got != 1 {
		t.Fatalf("verifier calls = %d, want 1", got)
	}

	a.Forget(ctx, "tok-alice")
	if _, err := a.Authenticate(ctx, "tok-alice"); err != nil {
		t.Fatalf("after forget: %v", err)
	}
	if got := v.calls.Load(); got != 2 {
		t.Fatalf("verifier calls after forget = %d, want 2", got)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	v := &countingVerifier{ids: map[string]identity.Identity{
		"tok-noemail": {SubjectID: "x"},
	}}
	a, cache, _ := newAuthenticator(v)
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, "  "); !errors.Is(err, identity.ErrInvalidCredential) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := a.Authenticate(ctx, "bogus"); !errors.Is(err, identity.ErrInvalidCredential) {
		t.Fatalf("bogus: %v", err)
	}
	if _, err := a.Authenticate(ctx, "tok-noemail"); !errors.Is(err, accounts.ErrMissingEmail) {
		t.Fatalf("no email: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failures must not be cached")
	}

	v.err = identity.ErrVerifierUnavailable
	if _, err := a.Authenticate(ctx, "anything"); !errors.Is(err, identity.ErrVerifierUnavailable) {
		t.Fatalf("unavailable: %v", err)
	}
}

func TestAuthenticate_UnverifiedIsNotCached(t *testing.T) {
	v := &countingVerifier{ids: map[string]identity.Identity{
		"tok": {SubjectID: "u", Email: "u@corp.test", Unverified: true},
	}}
	a, cache, _ := newAuthenticator(v)
	if _, err := a.Authenticate(context.Background(), "tok"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("unverified identity was cached")
	}
}

func TestRequireBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := &countingVerifier{ids: map[string]identity.Identity{
		"good": {SubjectID: "b", Email: "bob@example.com"},
	}}
	a, _, _ := newAuthenticator(v)

	var lastErr error
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			lastErr = c.Errors.Last().Err
			c.AbortWithStatus(http.StatusUnauthorized)
		}
	})
	r.GET("/me", RequireBearer(a), func(c *gin.Context) {
		p, err := PrincipalFrom(c.Request.Context())
		if err != nil || Credential(c.Request.Context()) != "good" || c.GetString(KeyAccountID) != p.Account.ID {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, p.Account.Email)
	})

	cases := []struct {
		header string
		code   int
		err    error
	}{
		{"", http.StatusUnauthorized, identity.ErrInvalidCredential},
		{"Basic Zm9v", http.StatusUnauthorized, identity.ErrInvalidCredential},
		{"Bearer ", http.StatusUnauthorized, identity.ErrInvalidCredential},
		{"Bearer nope", http.StatusUnauthorized, identity.ErrInvalidCredential},
		{"bearer good", http.StatusOK, nil},
	}
	for _, tc := range cases {
		lastErr = nil
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("%q: status %d, want %d", tc.header, w.Code, tc.code)
		}
		if tc.err != nil && !errors.Is(lastErr, tc.err) {
			t.Fatalf("%q: err %v, want %v", tc.header, lastErr, tc.err)
		}
		if tc.code == http.StatusOK && w.Body.String() != "bob@example.com" {
			t.Fatalf("body = %q", w.Body.String())
		}
	}
}

func TestPrincipalMembership(t *testing.T) {
	p := Principal{
		Account:     directory.Account{ID: "a1", OrgIDs: []string{"o1"}},
		AdminOrgIDs: []string{"o2"},
	}
	m := p.Membership()
	if !m.IsMember("o1") || !m.Administers("o2") || p.SubjectID() != "a1" {
		t.Fatalf("membership: %+v", m)
	}
}

// pausingResolver holds its first Resolve after the account read until
// release is closed.
type pausingResolver struct {
	Resolver
	once     sync.Once
	resolved chan struct{}
	release  chan struct{}
}

func (r *pausingResolver) Resolve(ctx context.Context, id identity.Identity) (directory.Account, error) {
	acct, err := r.Resolver.Resolve(ctx, id)
	r.once.Do(func() {
		close(r.resolved)
		<-r.release
	})
	return acct, err
}

func TestAuthenticate_InFlightResolutionLosesToSwitch(t *testing.T) {
	ctx := context.Background()
	store := directory.NewMemoryStore()
	activity := audit.NewService(audit.NewMemoryRepo(), nil)
	cache := authcache.NewMemory(0)

	o1 := directory.Organization{Name: "Alpha", Domain: "alpha.test"}
	o2 := directory.Organization{Name: "Beta", Domain: "beta.test"}
	for _, o := range []*directory.Organization{&o1, &o2} {
		if err := store.Organizations().Create(ctx, o); err != nil {
			t.Fatalf("org: %v", err)
		}
	}
	carol := directory.Account{Email: "carol@alpha.test", Name: "Carol", OrgIDs: []string{o1.ID, o2.ID}, RoleIDs: []string{}}
	if err := store.Accounts().Create(ctx, &carol); err != nil {
		t.Fatalf("account: %v", err)
	}

	res := &pausingResolver{
		Resolver: accounts.NewResolver(store, activity, accounts.DefaultPublicDomains, nil),
		resolved: make(chan struct{}),
		release:  make(chan struct{}),
	}
	v := &countingVerifier{ids: map[string]identity.Identity{
		"tok-carol": {SubjectID: "c", Email: "carol@alpha.test", Name: "Carol"},
	}}
	a := NewAuthenticator(v, res, cache, 0, nil, nil)
	svc := orgs.NewService(store, cache, activity, nil)

	done := make(chan error, 1)
	go func() {
		_, err := a.Authenticate(ctx, "tok-carol")
		done <- err
	}()

	<-res.resolved
	if _, err := svc.SwitchActiveOrg(ctx, carol, o2.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}
	close(res.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight authenticate: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("resolution that predates the switch was cached")
	}

	p, err := a.Authenticate(ctx, "tok-carol")
	if err != nil {
		t.Fatalf("authenticate after switch: %v", err)
	}
	if p.Account.ActiveOrgID != o2.ID {
		t.Fatalf("active = %q, want %q", p.Account.ActiveOrgID, o2.ID)
	}
	if got := v.calls.Load(); got != 2 {
		t.Fatalf("verifier calls = %d, want 2", got)
	}
	if _, ok := cache.Lookup(ctx, "tok-carol"); !ok {
		t.Fatalf("fresh resolution should be cached")
	}
}

func TestAuthenticate_ResolutionAfterInvalidationIsCached(t *testing.T) {
	v := &countingVerifier{ids: map[string]identity.Identity{
		"tok": {SubjectID: "d", Email: "dave@example.com"},
	}}
	a, cache, _ := newAuthenticator(v)
	ctx := context.Background()

	p, err := a.Authenticate(ctx, "tok")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	cache.InvalidateAccount(ctx, p.Account.ID)
	a.now = func() time.Time { return time.Now().Add(time.Millisecond) }

	if _, err := a.Authenticate(ctx, "tok"); err != nil {
		t.Fatalf("re-authenticate: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("resolution started after the invalidation must be cached")
	}
}
