package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lighthouse-crm/internal/scope"
	"lighthouse-crm/pkg/utils"
)

// Schema creates the activity table and its listing index. Each statement is
// idempotent.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS activity_events (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	type        TEXT NOT NULL,
	actor_id    TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id   TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS activity_events_org_created_idx ON activity_events (org_id, created_at DESC)`,
}

// PostgresRepo stores events in Postgres through database/sql (pgx stdlib).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range Schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_events (id, org_id, type, actor_id, entity_type, entity_id, summary, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.OrgID, string(e.Type), e.ActorID, e.EntityType, e.EntityID, e.Summary, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f scope.Filter, q Query) ([]Event, error) {
	page := scope.Page{Skip: q.Skip, Limit: q.Limit}.Normalize()

	where := []string{"org_id = $1"}
	args := []any{f.OrgID}
	add := func(col, val string) {
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.OwnerID != "" {
		add("actor_id", f.OwnerID)
	}
	if q.EntityType != "" {
		add("entity_type", q.EntityType)
	}
	if q.EntityID != "" {
		add("entity_id", q.EntityID)
	}
	args = append(args, page.Limit, page.Skip)
	query := fmt.Sprintf(
		`SELECT id, org_id, type, actor_id, entity_type, entity_id, summary, metadata, created_at
		 FROM activity_events WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.OrgID, &typ, &e.ActorID, &e.EntityType, &e.EntityID, &e.Summary, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}
