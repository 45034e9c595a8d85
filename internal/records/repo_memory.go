package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/scope"
)

type MemoryStore struct {
	mu   sync.Mutex
	rows map[Kind]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[Kind]map[string]Record{}}
}

func cloneRecord(r Record) Record {
	if r.Fields != nil {
		f := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			f[k] = v
		}
		r.Fields = f
	}
	return r
}

func (s *MemoryStore) List(ctx context.Context, kind Kind, f scope.Filter, page scope.Page) ([]Record, error) {
	page = page.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Record{}
	for _, r := range s.rows[kind] {
		if f.Matches(r.OrgID, r.OwnerID) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if page.Skip >= len(out) {
		return []Record{}, nil
	}
	out = out[page.Skip:]
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, kind Kind, f scope.Filter, id string) (Record, error) {
	if !directory.ValidID(id) {
		return Record{}, directory.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[kind][id]
	if !ok || !f.Matches(r.OrgID, r.OwnerID) {
		return Record{}, directory.ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) Insert(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = directory.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[r.Kind] == nil {
		s.rows[r.Kind] = map[string]Record{}
	}
	if _, ok := s.rows[r.Kind][r.ID]; ok {
		return directory.ErrConflict
	}
	s.rows[r.Kind][r.ID] = cloneRecord(*r)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, kind Kind, f scope.Filter, id string, p Patch, now time.Time) (Record, error) {
	if !directory.ValidID(id) {
		return Record{}, directory.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[kind][id]
	if !ok || !f.Matches(r.OrgID, r.OwnerID) {
		return Record{}, directory.ErrNotFound
	}
	r = cloneRecord(r)
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if len(p.Fields) > 0 && r.Fields == nil {
		r.Fields = map[string]any{}
	}
	for k, v := range p.Fields {
		r.Fields[k] = v
	}
	r.UpdatedAt = now
	s.rows[kind][id] = r
	return cloneRecord(r), nil
}

func (s *MemoryStore) Delete(ctx context.Context, kind Kind, f scope.Filter, id string) error {
	if !directory.ValidID(id) {
		return directory.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[kind][id]
	if !ok || !f.Matches(r.OrgID, r.OwnerID) {
		return directory.ErrNotFound
	}
	delete(s.rows[kind], id)
	return nil
}
