package audit

import (
	"context"
	"testing"

	"lighthouse-crm/internal/scope"
)

func TestService_AppendRequiresOrgAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	if err := svc.Append(context.Background(), Event{Type: EventRecordCreated}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{OrgID: "o1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_RecordFillsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.RecordWithMetadata(context.Background(), Event{
		OrgID:      "o1",
		Type:       EventRecordCreated,
		ActorID:    "u1",
		EntityType: "leads",
		EntityID:   "l1",
	}, map[string]string{"name": "Jane"})

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp: %+v", evs[0])
	}
	if evs[0].Metadata != `{"name":"Jane"}` {
		t.Fatalf("metadata: %q", evs[0].Metadata)
	}
}

func TestService_RecordSwallowsInvalid(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	svc.Record(context.Background(), Event{Type: EventRecordCreated})
	if len(repo.Events()) != 0 {
		t.Fatalf("invalid event stored")
	}

	var nilSvc *Service
	nilSvc.Record(context.Background(), Event{OrgID: "o1", Type: EventRecordCreated})
}

func TestService_ListScopedToOrg(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.Record(ctx, Event{OrgID: "o1", Type: EventRecordCreated, ActorID: "u1", EntityType: "leads"})
	svc.Record(ctx, Event{OrgID: "o1", Type: EventRecordUpdated, ActorID: "u2", EntityType: "deals"})
	svc.Record(ctx, Event{OrgID: "o2", Type: EventRecordCreated, ActorID: "u1", EntityType: "leads"})

	got, err := svc.List(ctx, scope.Filter{OrgID: "o1"}, Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Type != EventRecordUpdated {
		t.Fatalf("expected newest-first o1 events, got %+v", got)
	}

	mine, _ := svc.List(ctx, scope.Filter{OrgID: "o1", OwnerID: "u1"}, Query{})
	if len(mine) != 1 || mine[0].EntityType != "leads" {
		t.Fatalf("owner filter: %+v", mine)
	}

	deals, _ := svc.List(ctx, scope.Filter{OrgID: "o1"}, Query{EntityType: "deals"})
	if len(deals) != 1 {
		t.Fatalf("entity filter: %+v", deals)
	}

	if _, err := svc.List(ctx, scope.Filter{}, Query{}); err == nil {
		t.Fatalf("expected error for unscoped list")
	}
}
