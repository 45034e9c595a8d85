package rbac

import (
	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/auth"
	"lighthouse-crm/internal/tenancy"
)

// OrgHeader optionally names the tenant a request targets.
const OrgHeader = "X-Org-Id"

// Require enforces req against the request's target organization: the
// :org_id path parameter when the route has one, otherwise the X-Org-Id
// header or the caller's active organization. The resolved id is stored under
// auth.KeyOrgID. Use after auth.RequireBearer.
func (g *Gate) Require(req Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := auth.PrincipalFrom(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		orgID := c.Param("org_id")
		if orgID == "" {
			orgID, err = tenancy.ResolveActiveOrg(p.Membership(), c.GetHeader(OrgHeader))
			if err != nil {
				_ = c.Error(err)
				c.Abort()
				return
			}
		}

		if err := g.Check(c.Request.Context(), p.Account, orgID, req); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(auth.KeyOrgID, orgID)
		c.Next()
	}
}

// OrgID returns the organization Require authorized.
func OrgID(c *gin.Context) string {
	return c.GetString(auth.KeyOrgID)
}
