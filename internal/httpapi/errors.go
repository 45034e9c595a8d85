package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lighthouse-crm/internal/accounts"
	"lighthouse-crm/internal/auth"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/identity"
	"lighthouse-crm/internal/orgs"
	"lighthouse-crm/internal/rbac"
	"lighthouse-crm/internal/records"
	"lighthouse-crm/internal/tenancy"
	"lighthouse-crm/pkg/logger"
)

// Error codes reported in the "code" field of error bodies.
const (
	CodeInvalidCredential   = "invalid_credential"
	CodeVerifierUnavailable = "verifier_unavailable"
	CodeMissingEmail        = "missing_email"
	CodeAccountNotFound     = "account_not_found"
	CodeNoOrganization      = "no_organization"
	CodeNotAMember          = "not_a_member"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeInvalidInput        = "invalid_input"
	CodeInternal            = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorKind struct {
	status  int
	code    string
	message string
}

// classify maps an error onto its HTTP rendering. Order matters: the more
// specific sentinels are checked first.
func classify(err error) errorKind {
	switch {
	case errors.Is(err, identity.ErrVerifierUnavailable):
		return errorKind{http.StatusUnauthorized, CodeVerifierUnavailable, "identity provider unavailable, retry shortly"}
	case errors.Is(err, identity.ErrInvalidCredential), errors.Is(err, auth.ErrNoPrincipal):
		return errorKind{http.StatusUnauthorized, CodeInvalidCredential, "invalid or missing credential"}
	case errors.Is(err, accounts.ErrMissingEmail):
		return errorKind{http.StatusUnauthorized, CodeMissingEmail, "identity carries no email address"}
	case errors.Is(err, accounts.ErrAccountNotFound):
		return errorKind{http.StatusNotFound, CodeAccountNotFound, "account not found"}
	case errors.Is(err, tenancy.ErrNoOrganization):
		return errorKind{http.StatusBadRequest, CodeNoOrganization, "no organization: create an organization or ask an admin to add you"}
	case errors.Is(err, tenancy.ErrNotAMember):
		return errorKind{http.StatusForbidden, CodeNotAMember, "not a member of this organization"}
	case errors.Is(err, rbac.ErrForbidden):
		return errorKind{http.StatusForbidden, CodeForbidden, "forbidden"}
	case errors.Is(err, directory.ErrNotFound):
		return errorKind{http.StatusNotFound, CodeNotFound, "not found"}
	case errors.Is(err, directory.ErrConflict):
		return errorKind{http.StatusConflict, CodeConflict, "already exists"}
	case errors.Is(err, directory.ErrInvalidID):
		return errorKind{http.StatusBadRequest, CodeInvalidInput, "malformed id"}
	case errors.Is(err, rbac.ErrMissingOrgID):
		return errorKind{http.StatusBadRequest, CodeInvalidInput, "organization id required"}
	case errors.Is(err, orgs.ErrInvalidInput), errors.Is(err, records.ErrInvalidInput), errors.Is(err, errBadRequest):
		return errorKind{http.StatusBadRequest, CodeInvalidInput, err.Error()}
	default:
		return errorKind{http.StatusInternalServerError, CodeInternal, "internal error"}
	}
}

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("invalid request")

// WriteError renders err and aborts the chain. Internal errors are logged and
// their message is not exposed.
func WriteError(c *gin.Context, err error) {
	k := classify(err)
	if k.status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		if len(c.Errors) == 0 {
			_ = c.Error(err)
		}
	}
	c.AbortWithStatusJSON(k.status, errorBody{Error: k.message, Code: k.code})
}

// ErrorResponder renders the last error attached with c.Error when nothing
// else wrote a response. Install it before the auth and rbac middlewares.
func ErrorResponder() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		WriteError(c, c.Errors.Last().Err)
	}
}
