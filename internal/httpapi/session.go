package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/auth"
	"lighthouse-crm/internal/tenancy"
)

type verifyTokenRequest struct {
	IDToken string `json:"id_token"`
}

// VerifyToken exchanges a provider token for the resolved account. The token
// itself stays the bearer credential for later requests.
func (h Handlers) VerifyToken(c *gin.Context) {
	var req verifyTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Auth.Authenticate(c.Request.Context(), req.IDToken)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.Set(auth.KeyAccountID, p.Account.ID)
	c.JSON(http.StatusOK, gin.H{"token": req.IDToken, "user": p.Account})
}

func (h Handlers) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	active, err := tenancy.ResolveActiveOrg(p.Membership(), "")
	if err != nil && !errors.Is(err, tenancy.ErrNoOrganization) {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":        p.Account,
		"activeOrgId": active,
		"adminOrgIds": nonNil(p.AdminOrgIDs),
		"unverified":  p.Identity.Unverified,
	})
}

// Logout drops the cached resolution of the caller's credential. The
// credential itself stays valid at the provider until it expires.
func (h Handlers) Logout(c *gin.Context) {
	h.Auth.Forget(c.Request.Context(), auth.Credential(c.Request.Context()))
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
