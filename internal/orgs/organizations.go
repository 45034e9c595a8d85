package orgs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/directory"
)

// ListOrganizations returns administered organizations followed by member
// organizations, without duplicates.
func (s *Service) ListOrganizations(ctx context.Context, acct directory.Account) ([]directory.Organization, error) {
	m, err := s.membership(ctx, acct)
	if err != nil {
		return nil, err
	}
	ids := append([]string{}, m.AdminOrgIDs...)
	for _, id := range m.OrgIDs {
		if !m.Administers(id) {
			ids = append(ids, id)
		}
	}
	found, err := s.orgs.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]directory.Organization, len(found))
	for _, o := range found {
		byID[o.ID] = o
	}
	out := make([]directory.Organization, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// CreateOrganization founds an organization with acct as its sole admin and
// adds it to acct's memberships. An empty domain is derived from the name.
func (s *Service) CreateOrganization(ctx context.Context, acct directory.Account, name, domain string) (directory.Organization, directory.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return directory.Organization{}, directory.Account{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		domain = directory.DomainFromName(name)
	}

	now := s.now()
	org := directory.Organization{
		ID:        directory.NewID(),
		Name:      name,
		Domain:    domain,
		Admins:    []string{acct.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orgs.Create(ctx, &org); err != nil {
		return directory.Organization{}, directory.Account{}, err
	}
	updated, err := s.accounts.AddMembership(ctx, acct.ID, org.ID, now)
	if err != nil {
		return directory.Organization{}, directory.Account{}, err
	}
	s.cache.InvalidateAccount(ctx, acct.ID)

	s.log.InfoContext(ctx, "organization created", slog.String("org_id", org.ID), slog.String("account_id", acct.ID))
	s.activity.Record(ctx, audit.Event{
		OrgID:      org.ID,
		Type:       audit.EventOrgCreated,
		ActorID:    acct.ID,
		EntityType: "organization",
		EntityID:   org.ID,
		Summary:    "organization created: " + name,
	})
	return org, updated, nil
}

func (s *Service) GetOrganization(ctx context.Context, orgID string) (directory.Organization, error) {
	return s.orgs.FindByID(ctx, orgID)
}

func (s *Service) RenameOrganization(ctx context.Context, actorID, orgID, name string) (directory.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return directory.Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	org, err := s.orgs.Rename(ctx, orgID, name, s.now())
	if err != nil {
		return directory.Organization{}, err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      org.ID,
		Type:       audit.EventOrgRenamed,
		ActorID:    actorID,
		EntityType: "organization",
		EntityID:   org.ID,
		Summary:    "organization renamed: " + name,
	})
	return org, nil
}

// isNotFound reports lookups that should read as "not in this organization".
func isNotFound(err error) bool {
	return errors.Is(err, directory.ErrNotFound)
}
