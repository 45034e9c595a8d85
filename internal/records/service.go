package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/scope"
)

// Input is the client-supplied part of a new record.
type Input struct {
	Name   string
	Status string
	Fields map[string]any
}

// Service applies scoped filters to every record operation and records
// activity for mutations.
type Service struct {
	store    Store
	orgs     directory.OrganizationStore
	activity *audit.Service
	clock    func() time.Time
}

func NewService(store Store, orgs directory.OrganizationStore, activity *audit.Service) *Service {
	return &Service{store: store, orgs: orgs, activity: activity, clock: time.Now}
}

func (s *Service) List(ctx context.Context, kind Kind, f scope.Filter, page scope.Page) ([]Record, error) {
	return s.store.List(ctx, kind, f, page)
}

func (s *Service) Get(ctx context.Context, kind Kind, f scope.Filter, id string) (Record, error) {
	return s.store.Get(ctx, kind, f, id)
}

// Create stamps the record with ids and stores it.
func (s *Service) Create(ctx context.Context, kind Kind, ids scope.IDs, in Input) (Record, error) {
	r, err := s.insert(ctx, kind, ids, in)
	if err != nil {
		return Record{}, err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      r.OrgID,
		Type:       audit.EventRecordCreated,
		ActorID:    r.OwnerID,
		EntityType: string(kind),
		EntityID:   r.ID,
		Summary:    fmt.Sprintf("%s created: %s", kind, r.Name),
	})
	return r, nil
}

func (s *Service) insert(ctx context.Context, kind Kind, ids scope.IDs, in Input) (Record, error) {
	if ids.OrgID == "" {
		return Record{}, fmt.Errorf("%w: missing organization", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return Record{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := ValidateFields(in.Fields); err != nil {
		return Record{}, err
	}
	now := s.clock().UTC()
	r := Record{
		ID:        directory.NewID(),
		Kind:      kind,
		OrgID:     ids.OrgID,
		OwnerID:   ids.OwnerID,
		Name:      strings.TrimSpace(in.Name),
		Status:    in.Status,
		Fields:    in.Fields,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(ctx, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *Service) Update(ctx context.Context, kind Kind, f scope.Filter, actorID, id string, p Patch) (Record, error) {
	if err := ValidateFields(p.Fields); err != nil {
		return Record{}, err
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Record{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	r, err := s.store.Update(ctx, kind, f, id, p, s.clock().UTC())
	if err != nil {
		return Record{}, err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      r.OrgID,
		Type:       audit.EventRecordUpdated,
		ActorID:    actorID,
		EntityType: string(kind),
		EntityID:   r.ID,
		Summary:    fmt.Sprintf("%s updated: %s", kind, r.Name),
	})
	return r, nil
}

func (s *Service) Delete(ctx context.Context, kind Kind, f scope.Filter, actorID, id string) error {
	if err := s.store.Delete(ctx, kind, f, id); err != nil {
		return err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      f.OrgID,
		Type:       audit.EventRecordDeleted,
		ActorID:    actorID,
		EntityType: string(kind),
		EntityID:   id,
		Summary:    fmt.Sprintf("%s deleted", kind),
	})
	return nil
}

// SubmitTicket creates an unowned ticket in an existing organization. It is
// the only unauthenticated write; the organization must exist. The ticket is
// recorded once, as a submission.
func (s *Service) SubmitTicket(ctx context.Context, orgID string, in Input) (Record, error) {
	if _, err := s.orgs.FindByID(ctx, orgID); err != nil {
		return Record{}, err
	}
	if in.Status == "" {
		in.Status = "open"
	}
	r, err := s.insert(ctx, KindTickets, scope.IDs{OrgID: orgID}, in)
	if err != nil {
		return Record{}, err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      orgID,
		Type:       audit.EventTicketSubmitted,
		EntityType: string(KindTickets),
		EntityID:   r.ID,
		Summary:    "public ticket submitted: " + r.Name,
	})
	return r, nil
}
