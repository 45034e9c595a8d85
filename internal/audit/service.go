package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lighthouse-crm/internal/scope"
)

// Repository is the persistence contract for activity events.
//
// It MUST be append-only. There are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f scope.Filter, q Query) ([]Event, error)
}

// Service records and lists organization activity.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrgID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event and only logs failures.
func (s *Service) Record(ctx context.Context, e Event) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.WarnContext(ctx, "activity record failed",
			slog.String("type", string(e.Type)),
			slog.String("org_id", e.OrgID),
			slog.Any("err", err),
		)
	}
}

// RecordWithMetadata is Record with a JSON-encoded metadata payload.
func (s *Service) RecordWithMetadata(ctx context.Context, e Event, metadata any) {
	if s == nil {
		return
	}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err == nil {
			e.Metadata = string(b)
		}
	}
	s.Record(ctx, e)
}

// List returns activity within the filter's organization, newest first.
// An owner-restricted filter narrows to events the owner caused.
func (s *Service) List(ctx context.Context, f scope.Filter, q Query) ([]Event, error) {
	if f.OrgID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.List(ctx, f, q)
}
