package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fallbackVerifier struct {
	primary Verifier
	log     *slog.Logger
	now     func() time.Time
}

// WithUnverifiedFallback decodes the credential without checking its signature,
// but only when primary reports ErrVerifierUnavailable. A credential primary
// rejected as invalid is never accepted. The resulting Identity is marked
// Unverified.
func WithUnverifiedFallback(primary Verifier, log *slog.Logger) Verifier {
	if log == nil {
		log = slog.Default()
	}
	return fallbackVerifier{primary: primary, log: log, now: time.Now}
}

func (f fallbackVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	id, err := f.primary.Verify(ctx, credential)
	if err == nil || !errors.Is(err, ErrVerifierUnavailable) {
		return id, err
	}

	var claims Claims
	if _, _, perr := jwt.NewParser().ParseUnverified(credential, &claims); perr != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, perr)
	}
	if claims.ExpiresAt != nil && f.now().After(claims.ExpiresAt.Time.Add(clockSkew)) {
		return Identity{}, fmt.Errorf("%w: token expired", ErrInvalidCredential)
	}
	id = claims.Identity()
	if id.SubjectID == "" {
		return Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidCredential)
	}
	id.Unverified = true

	f.log.WarnContext(ctx, "identity verifier unavailable; accepted unverified credential",
		slog.String("subject", id.SubjectID),
		slog.Any("err", err),
	)
	return id, nil
}
