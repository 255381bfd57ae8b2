package notion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/JakeFAU/pwa-discovery/internal/store"
)

const tagsProperty = "tags"

// RecordStore maps directory entries onto pages of a Notion database. The
// database argument is the Notion database ID.
type RecordStore struct {
	client   *notionapi.Client
	database string
}

// NewRecordStore returns a RecordStore. defaultDatabase is used when a call
// passes an empty database ID.
func NewRecordStore(client *notionapi.Client, defaultDatabase string) (*RecordStore, error) {
	if client == nil {
		return nil, errors.New("notion client is required")
	}
	return &RecordStore{client: client, database: defaultDatabase}, nil
}

func (s *RecordStore) databaseID(database string) (notionapi.DatabaseID, error) {
	if database == "" {
		database = s.database
	}
	if strings.TrimSpace(database) == "" {
		return "", errors.New("notion database id is required")
	}
	return notionapi.DatabaseID(database), nil
}

// QueryByFieldEquals follows every result page of an equals filter. Text
// conditions apply to the title, url and rich_text columns alike.
func (s *RecordStore) QueryByFieldEquals(ctx context.Context, database, field, value string) ([]store.Record, error) {
	if err := store.ValidateField(field); err != nil {
		return nil, err
	}
	id, err := s.databaseID(database)
	if err != nil {
		return nil, err
	}
	req := &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.PropertyFilter{
			Property: field,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
		PageSize: store.PageSize,
	}

	var records []store.Record
	for {
		resp, err := s.client.Database.Query(ctx, id, req)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", field, apiError(err))
		}
		for _, p := range resp.Results {
			if !p.Archived {
				records = append(records, pageRecord(p))
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return records, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// InsertRecord creates a page in the database.
func (s *RecordStore) InsertRecord(ctx context.Context, database string, entry store.Entry) (store.InsertResult, error) {
	id, err := s.databaseID(database)
	if err != nil {
		return store.InsertResult{}, err
	}
	created, err := s.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: id,
		},
		Properties: entryProperties(entry),
	})
	if err != nil {
		return store.InsertResult{}, fmt.Errorf("create page: %w", apiError(err))
	}
	return store.InsertResult{ID: string(created.ID)}, nil
}

// PaginatedQuery returns one API page. The cursor is Notion's own start_cursor.
func (s *RecordStore) PaginatedQuery(ctx context.Context, database, sortField, cursor string) (store.Page, error) {
	id, err := s.databaseID(database)
	if err != nil {
		return store.Page{}, err
	}
	sort := notionapi.SortObject{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC}
	if sortField != "" {
		if err := store.ValidateField(sortField); err != nil {
			return store.Page{}, err
		}
		sort = notionapi.SortObject{Property: sortField, Direction: notionapi.SortOrderASC}
	}
	resp, err := s.client.Database.Query(ctx, id, &notionapi.DatabaseQueryRequest{
		Sorts:       []notionapi.SortObject{sort},
		StartCursor: notionapi.Cursor(cursor),
		PageSize:    store.PageSize,
	})
	if err != nil {
		return store.Page{}, fmt.Errorf("list pages: %w", apiError(err))
	}
	out := store.Page{Records: make([]store.Record, 0, len(resp.Results)), HasMore: resp.HasMore}
	for _, p := range resp.Results {
		if !p.Archived {
			out.Records = append(out.Records, pageRecord(p))
		}
	}
	if resp.HasMore {
		out.NextCursor = string(resp.NextCursor)
	}
	return out, nil
}

// UpdateRecord rewrites the page properties.
func (s *RecordStore) UpdateRecord(ctx context.Context, _ string, id string, entry store.Entry) error {
	_, err := s.client.Page.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{
		Properties: entryProperties(entry),
	})
	if err != nil {
		return fmt.Errorf("update page %s: %w", id, apiError(err))
	}
	return nil
}

// ArchiveRecord moves the page to the trash.
func (s *RecordStore) ArchiveRecord(ctx context.Context, _ string, id string) error {
	_, err := s.client.Page.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{},
		Archived:   true,
	})
	if err != nil {
		return fmt.Errorf("archive page %s: %w", id, apiError(err))
	}
	return nil
}

// entryProperties builds the write payload. Empty URLs and short_name are
// left out: the API rejects empty url values and older directory databases
// lack the short_name column.
func entryProperties(e store.Entry) notionapi.Properties {
	props := notionapi.Properties{
		store.FieldTitle:       notionapi.TitleProperty{Title: textBlocks(e.Title)},
		store.FieldDescription: notionapi.RichTextProperty{RichText: textBlocks(e.Description)},
	}
	if e.Link != "" {
		props[store.FieldLink] = notionapi.URLProperty{URL: e.Link}
	}
	if e.Icon != "" {
		props[store.FieldIcon] = notionapi.URLProperty{URL: e.Icon}
	}
	if e.ShortName != "" {
		props[store.FieldShortName] = notionapi.RichTextProperty{RichText: textBlocks(e.ShortName)}
	}
	if len(e.Tags) > 0 {
		options := make([]notionapi.Option, 0, len(e.Tags))
		for _, tag := range e.Tags {
			options = append(options, notionapi.Option{Name: tag})
		}
		props[tagsProperty] = notionapi.MultiSelectProperty{MultiSelect: options}
	}
	return props
}

func textBlocks(s string) []notionapi.RichText {
	if s == "" {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

func pageRecord(p notionapi.Page) store.Record {
	rec := store.Record{ID: string(p.ID), CreatedAt: p.CreatedTime}
	rec.Title = propertyText(p.Properties[store.FieldTitle])
	rec.Link = propertyText(p.Properties[store.FieldLink])
	rec.Icon = propertyText(p.Properties[store.FieldIcon])
	rec.Description = propertyText(p.Properties[store.FieldDescription])
	rec.ShortName = propertyText(p.Properties[store.FieldShortName])
	if tags, ok := p.Properties[tagsProperty].(*notionapi.MultiSelectProperty); ok {
		for _, opt := range tags.MultiSelect {
			rec.Tags = append(rec.Tags, opt.Name)
		}
	}
	return rec
}

func propertyText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.URLProperty:
		return v.URL
	default:
		return ""
	}
}

func plainText(blocks []notionapi.RichText) string {
	var b strings.Builder
	for _, block := range blocks {
		switch {
		case block.PlainText != "":
			b.WriteString(block.PlainText)
		case block.Text != nil:
			b.WriteString(block.Text.Content)
		}
	}
	return b.String()
}
