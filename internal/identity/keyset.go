package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const (
	keySetTTL = time.Hour
	// unknown kids inside a fresh set refetch at most this often
	keySetRefetchGap = 30 * time.Second
)

var errKeyNotFound = errors.New("identity: signing key not found")

// keySet is the provider's published RSA signing keys, fetched on demand and
// held for keySetTTL. Concurrent misses share one fetch.
type keySet struct {
	url    string
	client *http.Client
	now    func() time.Time

	fetchMu sync.Mutex

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
	attempts  int
	lastErr   error
}

type keySetDoc struct {
	Keys []publicJWK `json:"keys"`
}

type publicJWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newKeySet(url string, client *http.Client) *keySet {
	if client == nil {
		client = http.DefaultClient
	}
	return &keySet{url: url, client: client, now: time.Now}
}

// key returns the signing key for kid. A failed fetch is
// ErrVerifierUnavailable unless kid is already known, in which case the known
// key is used until the provider answers again.
func (s *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errKeyNotFound
	}
	known, fresh, refetch := s.cached(kid)
	if known != nil && fresh {
		return known, nil
	}
	if known == nil && !refetch {
		return nil, errKeyNotFound
	}

	if err := s.fetch(ctx); err != nil {
		if known != nil {
			return known, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	if k, _, _ := s.cached(kid); k != nil {
		return k, nil
	}
	return nil, errKeyNotFound
}

// cached reports the key held for kid, whether the set is within its ttl, and
// whether a fetch may run now.
func (s *keySet) cached(kid string) (*rsa.PublicKey, bool, bool) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	age := now.Sub(s.fetchedAt)
	fresh := !s.fetchedAt.IsZero() && age < keySetTTL
	return s.keys[kid], fresh, !fresh || age >= keySetRefetchGap
}

func (s *keySet) fetch(ctx context.Context) error {
	s.mu.RLock()
	seen := s.attempts
	s.mu.RUnlock()

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	s.mu.RLock()
	if s.attempts != seen {
		err := s.lastErr
		s.mu.RUnlock()
		return err
	}
	s.mu.RUnlock()

	keys, err := s.download(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.lastErr = err
	if err != nil {
		return err
	}
	s.keys = keys
	s.fetchedAt = s.now()
	return nil
}

func (s *keySet) download(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key set: status %d", resp.StatusCode)
	}

	var doc keySetDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("key set: %w", err)
	}
	keys := map[string]*rsa.PublicKey{}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := k.rsaKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("key set: no usable rsa keys")
	}
	return keys, nil
}

func (k publicJWK) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, errors.New("bad modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("bad exponent")
	}
	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	if exp < 3 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}
