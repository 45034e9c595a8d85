package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/auth"
	"lighthouse-crm/internal/orgs"
	"lighthouse-crm/internal/rbac"
	"lighthouse-crm/internal/records"
	"lighthouse-crm/internal/scope"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Authenticator
	Gate     *rbac.Gate
	Orgs     *orgs.Service
	Records  *records.Service
	Activity *audit.Service
}

// Register mounts the API under /api. Every /api route renders failures
// through ErrorResponder.
func (h Handlers) Register(r gin.IRouter) {
	api := r.Group("/api", ErrorResponder())

	// Unauthenticated.
	api.POST("/auth/verify-token", h.VerifyToken)
	api.POST("/public/tickets", h.SubmitTicket)

	authed := api.Group("", auth.RequireBearer(h.Auth))
	authed.GET("/auth/me", h.Me)
	authed.POST("/auth/logout", h.Logout)

	authed.GET("/tenants", h.ListTenants)
	authed.POST("/tenants/switch", h.SwitchTenant)

	authed.GET("/organizations", h.ListOrganizations)
	authed.POST("/organizations", h.CreateOrganization)

	org := authed.Group("/organizations/:org_id")
	org.GET("", h.Gate.Require(rbac.Member()), h.GetOrganization)
	org.PUT("", h.Gate.Require(rbac.Admin()), h.RenameOrganization)

	employees := org.Group("/employees", h.Gate.Require(rbac.Admin()))
	employees.GET("", h.ListEmployees)
	employees.POST("", h.AddEmployee)
	employees.PUT("/:account_id", h.UpdateEmployee)
	employees.DELETE("/:account_id", h.RemoveEmployee)

	roles := org.Group("/roles")
	roles.GET("", h.Gate.Require(rbac.Member()), h.ListRoles)
	roles.GET("/:role_id", h.Gate.Require(rbac.Member()), h.GetRole)
	roles.POST("", h.Gate.Require(rbac.Admin()), h.CreateRole)
	roles.PUT("/:role_id", h.Gate.Require(rbac.Admin()), h.UpdateRole)
	roles.DELETE("/:role_id", h.Gate.Require(rbac.Admin()), h.DeleteRole)

	for _, kind := range []records.Kind{records.KindLeads, records.KindContacts, records.KindAccounts, records.KindDeals} {
		g := authed.Group("/"+string(kind), h.Gate.Require(rbac.Member()))
		g.GET("", h.listRecords(kind))
		g.GET("/:id", h.getRecord(kind))
		g.POST("", h.createRecord(kind))
		g.PUT("/:id", h.updateRecord(kind))
		g.DELETE("/:id", h.deleteRecord(kind))
	}

	tickets := authed.Group("/tickets")
	tickets.GET("", h.Gate.Require(rbac.Permission(rbac.TicketReaders...)), h.listRecords(records.KindTickets))
	tickets.GET("/:id", h.Gate.Require(rbac.Permission(rbac.TicketReaders...)), h.getRecord(records.KindTickets))
	tickets.PUT("/:id", h.Gate.Require(rbac.Permission(rbac.TicketWriters...)), h.updateRecord(records.KindTickets))
	tickets.DELETE("/:id", h.Gate.Require(rbac.Permission(rbac.PermAdminTickets)), h.deleteRecord(records.KindTickets))

	authed.GET("/activities", h.Gate.Require(rbac.Member()), h.ListActivities)
}

// Healthz is the liveness probe.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, err := auth.PrincipalFrom(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return auth.Principal{}, false
	}
	return p, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		WriteError(c, fmt.Errorf("%w: invalid json", errBadRequest))
		return false
	}
	return true
}

// page reads skip/limit query parameters.
func page(c *gin.Context) (scope.Page, bool) {
	var p scope.Page
	for _, q := range []struct {
		name string
		dst  *int
	}{{"skip", &p.Skip}, {"limit", &p.Limit}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(c, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, q.name))
			return scope.Page{}, false
		}
		*q.dst = n
	}
	return p.Normalize(), true
}

// mine reports whether the owner-restricted view was requested.
func mine(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("mine"))
	return v
}
