package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

type memRecord struct {
	store.Record
	archived bool
}

// RecordStore keeps directory records per database in memory.
type RecordStore struct {
	mu  sync.RWMutex
	dbs map[string][]*memRecord
	now func() time.Time
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		dbs: make(map[string][]*memRecord),
		now: time.Now,
	}
}

// QueryByFieldEquals returns live records whose field equals value exactly.
func (s *RecordStore) QueryByFieldEquals(_ context.Context, database, field, value string) ([]store.Record, error) {
	if err := store.ValidateField(field); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Record
	for _, rec := range s.dbs[database] {
		if rec.archived {
			continue
		}
		if v, _ := rec.Field(field); v == value {
			out = append(out, cloneRecord(rec.Record))
		}
	}
	return out, nil
}

// InsertRecord appends entry with a fresh UUIDv7 identifier.
func (s *RecordStore) InsertRecord(_ context.Context, database string, entry store.Entry) (store.InsertResult, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("generate record id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dbs[database] = append(s.dbs[database], &memRecord{Record: store.Record{
		ID:        id.String(),
		CreatedAt: s.now().UTC(),
		Entry:     cloneEntry(entry),
	}})
	return store.InsertResult{ID: id.String()}, nil
}

// PaginatedQuery lists live records sorted ascending by sortField, or in
// insertion order when sortField is empty.
func (s *RecordStore) PaginatedQuery(_ context.Context, database, sortField, cursor string) (store.Page, error) {
	if sortField != "" {
		if err := store.ValidateField(sortField); err != nil {
			return store.Page{}, err
		}
	}
	offset, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.Page{}, err
	}

	s.mu.RLock()
	live := make([]store.Record, 0, len(s.dbs[database]))
	for _, rec := range s.dbs[database] {
		if !rec.archived {
			live = append(live, cloneRecord(rec.Record))
		}
	}
	s.mu.RUnlock()

	if sortField != "" {
		sort.SliceStable(live, func(i, j int) bool {
			a, _ := live[i].Field(sortField)
			b, _ := live[j].Field(sortField)
			return a < b
		})
	}

	page := store.Page{Records: []store.Record{}}
	if offset >= len(live) {
		return page, nil
	}
	end := min(offset+store.PageSize, len(live))
	page.Records = live[offset:end]
	if end < len(live) {
		page.HasMore = true
		page.NextCursor = store.EncodeCursor(end)
	}
	return page, nil
}

// UpdateRecord replaces the entry of a live record.
func (s *RecordStore) UpdateRecord(_ context.Context, database, id string, entry store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(database, id)
	if rec == nil {
		return fmt.Errorf("update %s: %w", id, store.ErrNotFound)
	}
	rec.Entry = cloneEntry(entry)
	return nil
}

// ArchiveRecord hides a live record.
func (s *RecordStore) ArchiveRecord(_ context.Context, database, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.find(database, id)
	if rec == nil {
		return fmt.Errorf("archive %s: %w", id, store.ErrNotFound)
	}
	rec.archived = true
	return nil
}

func (s *RecordStore) find(database, id string) *memRecord {
	for _, rec := range s.dbs[database] {
		if rec.ID == id && !rec.archived {
			return rec
		}
	}
	return nil
}

func cloneEntry(e store.Entry) store.Entry {
	e.Tags = append([]string(nil), e.Tags...)
	return e
}

func cloneRecord(r store.Record) store.Record {
	r.Entry = cloneEntry(r.Entry)
	return r
}
