package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/pwa"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

// Check classifies a single URL. Only a missing target or a hard strategy
// failure (cancellation, browser launch) is returned as an error.
func (s *Service) Check(ctx context.Context, target string) (pwa.CheckResponse, error) {
	if strings.TrimSpace(target) == "" {
		return pwa.CheckResponse{}, ErrMissingURL
	}
	resp, err := s.deps.Checker.Check(ctx, target)
	if err != nil {
		return pwa.CheckResponse{}, fmt.Errorf("%s: %w", s.deps.Checker.Name(), err)
	}
	return resp, nil
}

// AddRequest is a manual directory submission.
type AddRequest struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// AddResult reports the stored record.
type AddResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Add stores a submission unless its link is already listed, in which case a
// *dedup.DuplicateError is returned.
func (s *Service) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	entry := store.Entry{
		Title:       strings.TrimSpace(req.Title),
		Link:        strings.TrimSpace(req.Link),
		Icon:        strings.TrimSpace(req.Icon),
		Description: strings.TrimSpace(req.Description),
		Tags:        req.Tags,
	}
	if !entry.Complete() {
		return AddResult{}, ErrMissingFields
	}
	if len(entry.Tags) == 0 {
		entry.Tags = append([]string(nil), s.settings.AddTags...)
	}

	res, err := s.gate.Insert(ctx, entry)
	if err != nil {
		return AddResult{}, err
	}
	s.logger.Info("pwa added", zap.String("id", res.ID), zap.String("link", entry.Link))
	s.notifyAdded(ctx, "add", "", res.ID, entry)
	return AddResult{
		ID:      res.ID,
		Message: fmt.Sprintf("Successfully added \"%s\" to PWALand", entry.Title),
	}, nil
}

// List returns one page of the directory in insertion order.
func (s *Service) List(ctx context.Context, cursor string) (store.Page, error) {
	page, err := s.deps.Store.PaginatedQuery(ctx, s.settings.Database, "", cursor)
	if err != nil {
		return store.Page{}, fmt.Errorf("list records: %w", err)
	}
	return page, nil
}
