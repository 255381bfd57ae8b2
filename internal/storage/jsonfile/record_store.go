package jsonfile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

const idLength = 16

// RecordStore serves store.RecordStore from the entry file. Every call reads
// the whole file and every mutation rewrites it; one process is assumed to
// own the file. Record IDs are derived from the link, and the database
// argument is ignored.
type RecordStore struct {
	mu     sync.Mutex
	path   string
	hasher crawler.Hasher
}

// NewRecordStore binds a store to the file at path.
func NewRecordStore(path string, hasher crawler.Hasher) (*RecordStore, error) {
	if path == "" {
		return nil, fmt.Errorf("entry file path is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	return &RecordStore{path: path, hasher: hasher}, nil
}

func (s *RecordStore) id(link string) (string, error) {
	sum, err := s.hasher.Hash([]byte(link))
	if err != nil {
		return "", fmt.Errorf("hash link: %w", err)
	}
	if len(sum) > idLength {
		sum = sum[:idLength]
	}
	return sum, nil
}

func (s *RecordStore) records() ([]store.Entry, []store.Record, error) {
	entries, err := ReadEntries(s.path)
	if err != nil {
		return nil, nil, err
	}
	records := make([]store.Record, 0, len(entries))
	for _, e := range entries {
		id, err := s.id(e.Link)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, store.Record{ID: id, Entry: e})
	}
	return entries, records, nil
}

// QueryByFieldEquals scans the file for exact field matches.
func (s *RecordStore) QueryByFieldEquals(_ context.Context, _ string, field, value string) ([]store.Record, error) {
	if err := store.ValidateField(field); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, records, err := s.records()
	if err != nil {
		return nil, err
	}
	var out []store.Record
	for _, rec := range records {
		if v, _ := rec.Field(field); v == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

// InsertRecord appends entry to the file.
func (s *RecordStore) InsertRecord(_ context.Context, _ string, entry store.Entry) (store.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := ReadEntries(s.path)
	if err != nil {
		return store.InsertResult{}, err
	}
	id, err := s.id(entry.Link)
	if err != nil {
		return store.InsertResult{}, err
	}
	if err := WriteEntries(s.path, append(entries, entry)); err != nil {
		return store.InsertResult{}, err
	}
	return store.InsertResult{ID: id}, nil
}

// PaginatedQuery pages over the file in file order, or sorted by sortField.
func (s *RecordStore) PaginatedQuery(_ context.Context, _ string, sortField, cursor string) (store.Page, error) {
	if sortField != "" {
		if err := store.ValidateField(sortField); err != nil {
			return store.Page{}, err
		}
	}
	offset, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.Page{}, err
	}
	s.mu.Lock()
	_, records, err := s.records()
	s.mu.Unlock()
	if err != nil {
		return store.Page{}, err
	}
	if sortField != "" {
		sort.SliceStable(records, func(i, j int) bool {
			a, _ := records[i].Field(sortField)
			b, _ := records[j].Field(sortField)
			return a < b
		})
	}
	page := store.Page{Records: []store.Record{}}
	if offset >= len(records) {
		return page, nil
	}
	end := min(offset+store.PageSize, len(records))
	page.Records = records[offset:end]
	if end < len(records) {
		page.HasMore = true
		page.NextCursor = store.EncodeCursor(end)
	}
	return page, nil
}

// UpdateRecord replaces the first entry whose ID matches.
func (s *RecordStore) UpdateRecord(_ context.Context, _ string, id string, entry store.Entry) error {
	return s.mutate(id, func(entries []store.Entry, i int) []store.Entry {
		entries[i] = entry
		return entries
	})
}

// ArchiveRecord removes the entry from the file; the format has no archive flag.
func (s *RecordStore) ArchiveRecord(_ context.Context, _ string, id string) error {
	return s.mutate(id, func(entries []store.Entry, i int) []store.Entry {
		return append(entries[:i], entries[i+1:]...)
	})
}

func (s *RecordStore) mutate(id string, apply func([]store.Entry, int) []store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, records, err := s.records()
	if err != nil {
		return err
	}
	for i, rec := range records {
		if rec.ID == id {
			return WriteEntries(s.path, apply(entries, i))
		}
	}
	return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
}
