package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound signals that the requested record or run does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownField rejects queries on fields outside the entry schema.
	ErrUnknownField = errors.New("unknown field")
)

// Queryable entry fields.
const (
	FieldTitle       = "title"
	FieldLink        = "link"
	FieldIcon        = "icon"
	FieldDescription = "description"
	FieldShortName   = "short_name"
)

// PageSize is the number of records returned per PaginatedQuery call.
const PageSize = 100

// Entry is one directory listing.
type Entry struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Icon        string   `json:"icon"`
	Description string   `json:"description,omitempty"`
	ShortName   string   `json:"short_name,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Field returns the value of a queryable field.
func (e Entry) Field(name string) (string, error) {
	switch name {
	case FieldTitle:
		return e.Title, nil
	case FieldLink:
		return e.Link, nil
	case FieldIcon:
		return e.Icon, nil
	case FieldDescription:
		return e.Description, nil
	case FieldShortName:
		return e.ShortName, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// ValidateField reports ErrUnknownField for names outside the schema.
func ValidateField(name string) error {
	_, err := Entry{}.Field(name)
	return err
}

// Complete reports whether the required title, link and icon are present.
func (e Entry) Complete() bool {
	return strings.TrimSpace(e.Title) != "" &&
		strings.TrimSpace(e.Link) != "" &&
		strings.TrimSpace(e.Icon) != ""
}

// Record is a persisted entry.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Entry
}

// InsertResult carries the identifier assigned to a new record.
type InsertResult struct {
	ID string `json:"id"`
}

// Page is one slice of a paginated listing.
type Page struct {
	Records    []Record `json:"records"`
	HasMore    bool     `json:"hasMore"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// RecordStore persists directory entries. database names the collection,
// which maps to a table, a hosted database ID, or is ignored by single-file
// backends.
type RecordStore interface {
	// QueryByFieldEquals returns archived-excluded records whose field equals value exactly.
	QueryByFieldEquals(ctx context.Context, database, field, value string) ([]Record, error)
	InsertRecord(ctx context.Context, database string, entry Entry) (InsertResult, error)
	// PaginatedQuery lists up to PageSize records sorted ascending by sortField
	// (insertion order when empty), starting at the opaque cursor.
	PaginatedQuery(ctx context.Context, database, sortField, cursor string) (Page, error)
	UpdateRecord(ctx context.Context, database, id string, entry Entry) error
	// ArchiveRecord hides a record from queries and listings.
	ArchiveRecord(ctx context.Context, database, id string) error
}
