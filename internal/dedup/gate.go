// Package dedup keeps the directory free of repeats: an exact-link check
// against the record store, host sets for intra- and cross-run filtering, and
// an optional persisted bloom filter of already-checked hosts.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// ErrDuplicate matches every *DuplicateError.
var ErrDuplicate = errors.New("duplicate entry")

// DuplicateError reports that an entry with the same link is already stored.
type DuplicateError struct {
	Link string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("A PWA with link %q already exists in the database", e.Link)
}

// Is lets errors.Is(err, ErrDuplicate) match.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Gate guards inserts with an exact-link existence check. The check and the
// insert are separate store calls, so two concurrent inserts of the same link
// can both pass; callers accept that weak consistency.
type Gate struct {
	store    store.RecordStore
	database string
}

// NewGate binds a gate to one database of the record store.
func NewGate(s store.RecordStore, database string) *Gate {
	return &Gate{store: s, database: database}
}

// Exists reports whether any record has exactly this link.
func (g *Gate) Exists(ctx context.Context, link string) (bool, error) {
	records, err := g.store.QueryByFieldEquals(ctx, g.database, store.FieldLink, link)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return len(records) > 0, nil
}

// Insert stores entry unless its link already exists, in which case a
// *DuplicateError is returned.
func (g *Gate) Insert(ctx context.Context, entry store.Entry) (store.InsertResult, error) {
	exists, err := g.Exists(ctx, entry.Link)
	if err != nil {
		return store.InsertResult{}, err
	}
	if exists {
		return store.InsertResult{}, &DuplicateError{Link: entry.Link}
	}
	res, err := g.store.InsertRecord(ctx, g.database, entry)
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("insert record: %w", err)
	}
	return res, nil
}
