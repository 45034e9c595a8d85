package orgs

import (
	"context"
	"fmt"
	"strings"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/directory"
)

func (s *Service) ListRoles(ctx context.Context, orgID string) ([]directory.Role, error) {
	return s.roles.ListByOrg(ctx, orgID)
}

func (s *Service) GetRole(ctx context.Context, orgID, roleID string) (directory.Role, error) {
	return s.roles.FindInOrg(ctx, orgID, roleID)
}

func (s *Service) CreateRole(ctx context.Context, actorID, orgID, name string, permissions []string) (directory.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return directory.Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := s.orgs.FindByID(ctx, orgID); err != nil {
		return directory.Role{}, err
	}
	now := s.now()
	role := directory.Role{
		ID:          directory.NewID(),
		OrgID:       orgID,
		Name:        name,
		Permissions: cleanPermissions(permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, &role); err != nil {
		return directory.Role{}, err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      orgID,
		Type:       audit.EventRoleCreated,
		ActorID:    actorID,
		EntityType: "role",
		EntityID:   role.ID,
		Summary:    "role created: " + name,
	})
	return role, nil
}

// UpdateRole edits a role in place. Permission checks read roles from the
// store, so holders see the change on their next request.
func (s *Service) UpdateRole(ctx context.Context, actorID, orgID, roleID string, upd directory.RoleUpdate) (directory.Role, error) {
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return directory.Role{}, fmt.Errorf("%w: role name cannot be empty", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Permissions != nil {
		perms := cleanPermissions(*upd.Permissions)
		upd.Permissions = &perms
	}
	role, err := s.roles.Update(ctx, orgID, roleID, upd, s.now())
	if err != nil {
		return directory.Role{}, err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      orgID,
		Type:       audit.EventRoleUpdated,
		ActorID:    actorID,
		EntityType: "role",
		EntityID:   role.ID,
		Summary:    "role updated: " + role.Name,
	})
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, actorID, orgID, roleID string) error {
	if err := s.roles.Delete(ctx, orgID, roleID); err != nil {
		return err
	}
	s.activity.Record(ctx, audit.Event{
		OrgID:      orgID,
		Type:       audit.EventRoleDeleted,
		ActorID:    actorID,
		EntityType: "role",
		EntityID:   roleID,
		Summary:    "role deleted",
	})
	return nil
}

func cleanPermissions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
