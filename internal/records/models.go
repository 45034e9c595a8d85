package records

import (
	"context"
	"errors"
	"strings"
	"time"

	"lighthouse-crm/internal/scope"
)

// Kind names a tenant-scoped CRM collection.
type Kind string

const (
	KindLeads    Kind = "leads"
	KindContacts Kind = "contacts"
	KindAccounts Kind = "accounts"
	KindDeals    Kind = "deals"
	KindTickets  Kind = "tickets"
)

var Kinds = []Kind{KindLeads, KindContacts, KindAccounts, KindDeals, KindTickets}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Record is one row of a CRM collection. OrgID and OwnerID are set by the
// server and never taken from client input.
type Record struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	OrgID     string         `json:"orgId"`
	OwnerID   string         `json:"ownerId"`
	Name      string         `json:"name"`
	Status    string         `json:"status,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Patch is a partial update. Fields are merged key by key.
type Patch struct {
	Name   *string
	Status *string
	Fields map[string]any
}

var ErrInvalidInput = errors.New("records: invalid input")

// ValidateFields rejects keys the document store would interpret as operators
// or paths.
func ValidateFields(fields map[string]any) error {
	for k := range fields {
		if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			return ErrInvalidInput
		}
		switch k {
		case "orgId", "ownerId", "_id", "id":
			return ErrInvalidInput
		}
	}
	return nil
}

// Store persists records. Every read and write carries a scope.Filter; a record
// outside the filter is reported as directory.ErrNotFound.
type Store interface {
	List(ctx context.Context, kind Kind, f scope.Filter, page scope.Page) ([]Record, error)
	Get(ctx context.Context, kind Kind, f scope.Filter, id string) (Record, error)
	Insert(ctx context.Context, r *Record) error
	Update(ctx context.Context, kind Kind, f scope.Filter, id string, p Patch, now time.Time) (Record, error)
	Delete(ctx context.Context, kind Kind, f scope.Filter, id string) error
}
