package audit

import "time"

// Event is an append-only activity record.
//
// Invariants:
// - Events are never updated or deleted.
// - org_id is required; reads are always scoped to one organization.
// - Recording is best-effort; callers never fail a request on it.
type Event struct {
	ID    string    `json:"id" db:"id"`
	OrgID string    `json:"orgId" db:"org_id"`
	Type  EventType `json:"type" db:"type"`

	// ActorID is the account that caused the event. Empty for public submissions.
	ActorID string `json:"actorId,omitempty" db:"actor_id"`

	EntityType string `json:"entityType,omitempty" db:"entity_type"`
	EntityID   string `json:"entityId,omitempty" db:"entity_id"`

	Summary string `json:"summary,omitempty" db:"summary"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type EventType string

const (
	EventRecordCreated EventType = "record.created"
	EventRecordUpdated EventType = "record.updated"
	EventRecordDeleted EventType = "record.deleted"

	EventTicketSubmitted EventType = "ticket.submitted"

	EventOrgCreated     EventType = "organization.created"
	EventOrgProvisioned EventType = "organization.provisioned"
	EventOrgRenamed     EventType = "organization.renamed"

	EventEmployeeAdded   EventType = "employee.added"
	EventEmployeeUpdated EventType = "employee.updated"
	EventEmployeeRemoved EventType = "employee.removed"

	EventRoleCreated EventType = "role.created"
	EventRoleUpdated EventType = "role.updated"
	EventRoleDeleted EventType = "role.deleted"

	EventTenantSwitched EventType = "tenant.switched"
)

// Query narrows a scoped listing.
type Query struct {
	EntityType string
	EntityID   string
	Skip       int
	Limit      int
}
