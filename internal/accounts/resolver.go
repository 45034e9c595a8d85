// Package accounts maps verified identities to local accounts, provisioning
// an account and its domain organization on first sign-in.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/identity"
)

var (
	ErrMissingEmail    = errors.New("accounts: identity has no email")
	ErrAccountNotFound = errors.New("accounts: account not found")
)

// DefaultPublicDomains never get an organization auto-provisioned. They apply
// when NewResolver is given no list.
var DefaultPublicDomains = []string{
	"gmail.com", "googlemail.com", "outlook.com", "hotmail.com", "yahoo.com", "icloud.com",
}

type Resolver struct {
	accounts      directory.AccountStore
	orgs          directory.OrganizationStore
	activity      *audit.Service
	publicDomains map[string]struct{}
	log           *slog.Logger
	clock         func() time.Time
}

func NewResolver(store directory.Store, activity *audit.Service, publicDomains []string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if publicDomains == nil {
		publicDomains = DefaultPublicDomains
	}
	pd := make(map[string]struct{}, len(publicDomains))
	for _, d := range publicDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			pd[d] = struct{}{}
		}
	}
	return &Resolver{
		accounts:      store.Accounts(),
		orgs:          store.Organizations(),
		activity:      activity,
		publicDomains: pd,
		log:           log,
		clock:         time.Now,
	}
}

// Resolve finds or provisions the account for id.
//
// A new account joins the organization owning its email domain, creating it
// when absent; the first account attached to an organization without admins
// becomes its admin. Public and malformed domains never get an organization.
// An existing account only has changed profile fields rewritten, plus
// lastSeenAt, and is backfilled into its domain organization when it has none.
func (r *Resolver) Resolve(ctx context.Context, id identity.Identity) (directory.Account, error) {
	email := directory.NormalizeEmail(id.Email)
	if email == "" {
		return directory.Account{}, ErrMissingEmail
	}

	acct, err := r.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return r.refresh(ctx, acct, id)
	case errors.Is(err, directory.ErrNotFound):
		return r.provision(ctx, id, email)
	default:
		return directory.Account{}, fmt.Errorf("accounts: find by email: %w", err)
	}
}

// Lookup loads an existing account without provisioning.
func (r *Resolver) Lookup(ctx context.Context, accountID string) (directory.Account, error) {
	acct, err := r.accounts.FindByID(ctx, accountID)
	if errors.Is(err, directory.ErrNotFound) {
		return directory.Account{}, ErrAccountNotFound
	}
	return acct, err
}

// AdministeredOrgIDs lists the organizations whose admin set contains accountID.
func (r *Resolver) AdministeredOrgIDs(ctx context.Context, accountID string) ([]string, error) {
	orgs, err := r.orgs.ListAdministeredBy(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("accounts: administered orgs: %w", err)
	}
	ids := make([]string, 0, len(orgs))
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (r *Resolver) provision(ctx context.Context, id identity.Identity, email string) (directory.Account, error) {
	org, hasOrg, err := r.domainOrg(ctx, email)
	if err != nil {
		return directory.Account{}, err
	}

	now := r.clock().UTC()
	acct := directory.Account{
		ID:         directory.NewID(),
		Email:      email,
		Name:       displayName(id, email),
		Picture:    id.Picture,
		ExternalID: id.SubjectID,
		RoleIDs:    []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
	}
	if hasOrg {
		acct.OrgIDs = []string{org.ID}
	}

	if err := r.accounts.Create(ctx, &acct); err != nil {
		if errors.Is(err, directory.ErrConflict) {
			// Lost a concurrent first sign-in for this email.
			existing, ferr := r.accounts.FindByEmail(ctx, email)
			if ferr != nil {
				return directory.Account{}, fmt.Errorf("accounts: re-read after conflict: %w", ferr)
			}
			return r.refresh(ctx, existing, id)
		}
		return directory.Account{}, fmt.Errorf("accounts: create: %w", err)
	}
	r.log.InfoContext(ctx, "account provisioned", slog.String("account_id", acct.ID), slog.Bool("has_org", hasOrg))

	if hasOrg {
		return r.bootstrapAdmin(ctx, acct, org.ID)
	}
	return acct, nil
}

func (r *Resolver) refresh(ctx context.Context, acct directory.Account, id identity.Identity) (directory.Account, error) {
	upd := directory.ProfileUpdate{SeenAt: r.clock().UTC()}
	if name := strings.TrimSpace(id.Name); name != "" && name != acct.Name {
		upd.Name = &name
	} else if acct.Name == "" {
		name := displayName(id, acct.Email)
		upd.Name = &name
	}
	if id.Picture != "" && id.Picture != acct.Picture {
		pic := id.Picture
		upd.Picture = &pic
	}
	if id.SubjectID != "" && id.SubjectID != acct.ExternalID && !id.Unverified {
		sub := id.SubjectID
		upd.ExternalID = &sub
	}

	updated, err := r.accounts.UpdateProfile(ctx, acct.ID, upd)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Account{}, ErrAccountNotFound
		}
		return directory.Account{}, fmt.Errorf("accounts: update profile: %w", err)
	}

	if len(updated.OrgIDs) > 0 {
		return updated, nil
	}
	org, hasOrg, err := r.domainOrg(ctx, updated.Email)
	if err != nil || !hasOrg {
		return updated, err
	}
	updated, err = r.accounts.AddMembership(ctx, updated.ID, org.ID, r.clock().UTC())
	if err != nil {
		return directory.Account{}, fmt.Errorf("accounts: backfill membership: %w", err)
	}
	return r.bootstrapAdmin(ctx, updated, org.ID)
}

// domainOrg finds or creates the organization for the email's domain.
func (r *Resolver) domainOrg(ctx context.Context, email string) (directory.Organization, bool, error) {
	domain := directory.EmailDomain(email)
	if domain == "" {
		return directory.Organization{}, false, nil
	}
	if _, public := r.publicDomains[domain]; public {
		return directory.Organization{}, false, nil
	}

	org, err := r.orgs.FindByDomain(ctx, domain)
	if err == nil {
		return org, true, nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return directory.Organization{}, false, fmt.Errorf("accounts: find org by domain: %w", err)
	}

	now := r.clock().UTC()
	org = directory.Organization{
		ID:        directory.NewID(),
		Name:      domain,
		Domain:    domain,
		Admins:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.orgs.Create(ctx, &org); err != nil {
		if !errors.Is(err, directory.ErrConflict) {
			return directory.Organization{}, false, fmt.Errorf("accounts: create org: %w", err)
		}
		org, err = r.orgs.FindByDomain(ctx, domain)
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Organization{}, false, nil
		}
		if err != nil {
			return directory.Organization{}, false, fmt.Errorf("accounts: re-read org: %w", err)
		}
		return org, true, nil
	}
	r.log.InfoContext(ctx, "organization provisioned", slog.String("org_id", org.ID), slog.String("domain", domain))
	r.activity.Record(ctx, audit.Event{
		OrgID:      org.ID,
		Type:       audit.EventOrgProvisioned,
		EntityType: "organization",
		EntityID:   org.ID,
		Summary:    "organization provisioned for " + domain,
	})
	return org, true, nil
}

// bootstrapAdmin makes acct the admin of orgID if the organization has none.
// An organization that vanished is dropped from the account's memberships.
func (r *Resolver) bootstrapAdmin(ctx context.Context, acct directory.Account, orgID string) (directory.Account, error) {
	now := r.clock().UTC()
	became, err := r.orgs.AddAdminIfNone(ctx, orgID, acct.ID, now)
	if errors.Is(err, directory.ErrNotFound) {
		r.log.WarnContext(ctx, "organization vanished during provisioning", slog.String("org_id", orgID))
		healed, rerr := r.accounts.RemoveMembership(ctx, acct.ID, orgID, now)
		if rerr != nil {
			return directory.Account{}, fmt.Errorf("accounts: drop vanished org: %w", rerr)
		}
		return healed, nil
	}
	if err != nil {
		return directory.Account{}, fmt.Errorf("accounts: bootstrap admin: %w", err)
	}
	if became {
		r.log.InfoContext(ctx, "first admin assigned", slog.String("org_id", orgID), slog.String("account_id", acct.ID))
	}
	return acct, nil
}

func displayName(id identity.Identity, email string) string {
	if name := strings.TrimSpace(id.Name); name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
