// Package identity verifies opaque bearer credentials issued by the external
// identity provider and maps their claims to an Identity.
package identity

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredential is a malformed, expired or wrongly signed credential.
	ErrInvalidCredential = errors.New("identity: invalid credential")
	// ErrVerifierUnavailable means verification could not be performed, e.g.
	// the key set could not be fetched in time.
	ErrVerifierUnavailable = errors.New("identity: verifier unavailable")
)

// Identity is what the provider vouches for.
type Identity struct {
	SubjectID string `json:"subjectId"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Picture   string `json:"picture,omitempty"`
	// Unverified marks an identity decoded without signature verification.
	Unverified bool `json:"unverified,omitempty"`
}

// Verifier turns a credential into an Identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// Claims is the provider token shape.
type Claims struct {
	jwt.RegisteredClaims

	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

func (c Claims) Identity() Identity {
	sub := c.Subject
	if sub == "" {
		sub = c.UserID
	}
	return Identity{
		SubjectID: sub,
		Email:     c.Email,
		Name:      c.Name,
		Picture:   c.Picture,
	}
}
