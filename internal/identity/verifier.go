package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTimeout = 5 * time.Second
	clockSkew      = 30 * time.Second
)

// Options are shared by the JWT verifiers.
type Options struct {
	Issuer   string
	Audience string
	// Timeout bounds one verification, including any key fetch.
	Timeout time.Duration
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type keyFunc func(ctx context.Context, t *jwt.Token) (any, error)

// JWTVerifier checks signature, expiry, issuer and audience of a provider token.
type JWTVerifier struct {
	opts    Options
	methods []string
	key     keyFunc
	keys    *keySet
}

// NewJWKSVerifier verifies RS256 tokens against the provider's published keys.
func NewJWKSVerifier(jwksURL string, client *http.Client, opts Options) *JWTVerifier {
	keys := newKeySet(jwksURL, client)
	v := &JWTVerifier{
		opts:    opts.withDefaults(),
		methods: []string{jwt.SigningMethodRS256.Alg()},
		keys:    keys,
	}
	keys.now = v.opts.Now
	v.key = func(ctx context.Context, t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return keys.key(ctx, kid)
	}
	return v
}

// NewHMACVerifier verifies HS256 tokens signed with a shared secret. Local and
// dev environments only.
func NewHMACVerifier(secret []byte, opts Options) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("identity: hmac secret is required")
	}
	return &JWTVerifier{
		opts:    opts.withDefaults(),
		methods: []string{jwt.SigningMethodHS256.Alg()},
		key: func(context.Context, *jwt.Token) (any, error) {
			return secret, nil
		},
	}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}
	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	popts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.opts.Now),
	}
	if v.opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		popts = append(popts, jwt.WithAudience(v.opts.Audience))
	}

	var unavailable error
	var claims Claims
	_, err := jwt.NewParser(popts...).ParseWithClaims(credential, &claims, func(t *jwt.Token) (any, error) {
		key, err := v.key(ctx, t)
		if errors.Is(err, ErrVerifierUnavailable) {
			unavailable = err
		}
		return key, err
	})
	if unavailable != nil {
		return Identity{}, unavailable
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	id := claims.Identity()
	if id.SubjectID == "" {
		return Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidCredential)
	}
	return id, nil
}
