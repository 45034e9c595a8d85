package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/orgs"
)

// --- Tenants ---

type switchTenantRequest struct {
	TenantID string `json:"tenant_id"`
}

func (h Handlers) ListTenants(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	tenants, active, err := h.Orgs.Tenants(c.Request.Context(), p.Account)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "activeTenantId": active})
}

func (h Handlers) SwitchTenant(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req switchTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	acct, err := h.Orgs.SwitchActiveOrg(c.Request.Context(), p.Account, req.TenantID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeTenantId": acct.ActiveOrgID, "user": acct})
}

// --- Organizations ---

type createOrganizationRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type renameOrganizationRequest struct {
	Name string `json:"name"`
}

func (h Handlers) ListOrganizations(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.Orgs.ListOrganizations(c.Request.Context(), p.Account)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": list})
}

// CreateOrganization makes the caller the sole admin of a new organization.
func (h Handlers) CreateOrganization(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req createOrganizationRequest
	if !bindJSON(c, &req) {
		return
	}
	org, acct, err := h.Orgs.CreateOrganization(c.Request.Context(), p.Account, req.Name, req.Domain)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"organization": org, "user": acct})
}

func (h Handlers) GetOrganization(c *gin.Context) {
	org, err := h.Orgs.GetOrganization(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h Handlers) RenameOrganization(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req renameOrganizationRequest
	if !bindJSON(c, &req) {
		return
	}
	org, err := h.Orgs.RenameOrganization(c.Request.Context(), p.Account.ID, c.Param("org_id"), req.Name)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// --- Employees ---

type addEmployeeRequest struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	RoleIDs []string `json:"roleIds"`
}

type updateEmployeeRequest struct {
	Name    *string   `json:"name"`
	RoleIDs *[]string `json:"roleIds"`
}

func (h Handlers) ListEmployees(c *gin.Context) {
	list, err := h.Orgs.ListEmployees(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": list})
}

func (h Handlers) AddEmployee(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req addEmployeeRequest
	if !bindJSON(c, &req) {
		return
	}
	emp, err := h.Orgs.AddEmployee(c.Request.Context(), p.Account.ID, c.Param("org_id"), orgs.EmployeeInput{
		Email:   req.Email,
		Name:    req.Name,
		RoleIDs: req.RoleIDs,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, emp)
}

func (h Handlers) UpdateEmployee(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req updateEmployeeRequest
	if !bindJSON(c, &req) {
		return
	}
	emp, err := h.Orgs.UpdateEmployee(c.Request.Context(), p.Account.ID, c.Param("org_id"), c.Param("account_id"), orgs.EmployeeUpdate{
		Name:    req.Name,
		RoleIDs: req.RoleIDs,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, emp)
}

func (h Handlers) RemoveEmployee(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.Orgs.RemoveEmployee(c.Request.Context(), p.Account.ID, c.Param("org_id"), c.Param("account_id")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Roles ---

type createRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type updateRoleRequest struct {
	Name        *string   `json:"name"`
	Permissions *[]string `json:"permissions"`
}

func (h Handlers) ListRoles(c *gin.Context) {
	list, err := h.Orgs.ListRoles(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": list})
}

func (h Handlers) GetRole(c *gin.Context) {
	role, err := h.Orgs.GetRole(c.Request.Context(), c.Param("org_id"), c.Param("role_id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h Handlers) CreateRole(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req createRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.Orgs.CreateRole(c.Request.Context(), p.Account.ID, c.Param("org_id"), req.Name, req.Permissions)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (h Handlers) UpdateRole(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req updateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.Orgs.UpdateRole(c.Request.Context(), p.Account.ID, c.Param("org_id"), c.Param("role_id"), directory.RoleUpdate{
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h Handlers) DeleteRole(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.Orgs.DeleteRole(c.Request.Context(), p.Account.ID, c.Param("org_id"), c.Param("role_id")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
