package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/identity"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	raw := strings.TrimSpace(header)
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(raw[len(bearerPrefix):])
	return tok, tok != ""
}

// RequireBearer authenticates the request and injects the Principal into its
// context. Failures are attached with c.Error and the chain is aborted; the
// error responder renders them. It performs no authorization.
func RequireBearer(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := BearerToken(c.GetHeader(authorizationHeader))
		if !ok {
			_ = c.Error(identity.ErrInvalidCredential)
			c.Abort()
			return
		}

		p, err := a.Authenticate(c.Request.Context(), tok)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		ctx := WithPrincipal(c.Request.Context(), p)
		ctx = withCredential(ctx, tok)
		c.Request = c.Request.WithContext(ctx)

		c.Set(KeyAccountID, p.Account.ID)
		c.Next()
	}
}
