package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/auth"
	"lighthouse-crm/internal/rbac"
	"lighthouse-crm/internal/records"
	"lighthouse-crm/internal/scope"
)

type recordRequest struct {
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Fields map[string]any `json:"fields"`
}

type recordPatchRequest struct {
	Name   *string        `json:"name"`
	Status *string        `json:"status"`
	Fields map[string]any `json:"fields"`
}

type publicTicketRequest struct {
	OrgID string `json:"orgId"`
	recordRequest
}

// filter builds the tenant filter for the organization the gate authorized.
func filter(c *gin.Context) (auth.Principal, scope.Filter, bool) {
	p, ok := principal(c)
	if !ok {
		return auth.Principal{}, scope.Filter{}, false
	}
	f, err := scope.BuildFilter(p, scope.Options{IncludeOwner: mine(c), ActiveOrgID: rbac.OrgID(c)})
	if err != nil {
		WriteError(c, err)
		return auth.Principal{}, scope.Filter{}, false
	}
	return p, f, true
}

func (h Handlers) listRecords(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, f, ok := filter(c)
		if !ok {
			return
		}
		pg, ok := page(c)
		if !ok {
			return
		}
		list, err := h.Records.List(c.Request.Context(), kind, f, pg)
		if err != nil {
			WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{string(kind): list, "skip": pg.Skip, "limit": pg.Limit})
	}
}

func (h Handlers) getRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, f, ok := filter(c)
		if !ok {
			return
		}
		rec, err := h.Records.Get(c.Request.Context(), kind, f, c.Param("id"))
		if err != nil {
			WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// createRecord stamps the new record with the authorized organization and the
// caller as owner. Client-supplied tenant fields are never read.
func (h Handlers) createRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principal(c)
		if !ok {
			return
		}
		var req recordRequest
		if !bindJSON(c, &req) {
			return
		}
		ids, err := scope.ExtractIDs(p, rbac.OrgID(c))
		if err != nil {
			WriteError(c, err)
			return
		}
		rec, err := h.Records.Create(c.Request.Context(), kind, ids, records.Input{
			Name:   req.Name,
			Status: req.Status,
			Fields: req.Fields,
		})
		if err != nil {
			WriteError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func (h Handlers) updateRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, f, ok := filter(c)
		if !ok {
			return
		}
		var req recordPatchRequest
		if !bindJSON(c, &req) {
			return
		}
		rec, err := h.Records.Update(c.Request.Context(), kind, f, p.Account.ID, c.Param("id"), records.Patch{
			Name:   req.Name,
			Status: req.Status,
			Fields: req.Fields,
		})
		if err != nil {
			WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (h Handlers) deleteRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, f, ok := filter(c)
		if !ok {
			return
		}
		if err := h.Records.Delete(c.Request.Context(), kind, f, p.Account.ID, c.Param("id")); err != nil {
			WriteError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SubmitTicket accepts a ticket for an existing organization without
// authentication.
func (h Handlers) SubmitTicket(c *gin.Context) {
	var req publicTicketRequest
	if !bindJSON(c, &req) {
		return
	}
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		WriteError(c, fmt.Errorf("%w: orgId is required", errBadRequest))
		return
	}
	rec, err := h.Records.SubmitTicket(c.Request.Context(), orgID, records.Input{
		Name:   req.Name,
		Status: req.Status,
		Fields: req.Fields,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": rec.ID, "status": rec.Status})
}

// ListActivities returns the authorized organization's history, newest first.
// mine=true narrows it to events the caller caused.
func (h Handlers) ListActivities(c *gin.Context) {
	_, f, ok := filter(c)
	if !ok {
		return
	}
	pg, ok := page(c)
	if !ok {
		return
	}
	events, err := h.Activity.List(c.Request.Context(), f, audit.Query{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Skip:       pg.Skip,
		Limit:      pg.Limit,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"activities": events})
}
