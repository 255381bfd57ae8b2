package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/dedup"
	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

type checkRequest struct {
	URL string `json:"url"`
}

// discoverResponse is the compact discovery summary; full per-domain results
// go to the history file and the run archive.
type discoverResponse struct {
	RunID        string              `json:"runId"`
	TotalDomains int                 `json:"totalDomains"`
	Checked      int                 `json:"checked"`
	Found        int                 `json:"found"`
	Added        int                 `json:"added"`
	Skipped      int                 `json:"skipped"`
	Failed       int                 `json:"failed"`
	DryRun       bool                `json:"dryRun"`
	Canceled     bool                `json:"canceled,omitempty"`
	FoundPWAs    []pipeline.FoundPWA `json:"foundPwas"`
}

type listResponse struct {
	Records    []listItem `json:"records"`
	HasMore    bool       `json:"hasMore"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type listItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.dir.Check(r.Context(), req.URL)
	switch {
	case errors.Is(err, pipeline.ErrMissingURL):
		s.fail(w, http.StatusOK, err.Error())
	case err != nil:
		s.logger.Warn("pwa check failed", zap.String("url", req.URL), zap.Error(err))
		s.fail(w, http.StatusOK, fmt.Sprintf("PWA check failed: %s", err))
	default:
		s.ok(w, resp)
	}
}

func (s *Server) add(w http.ResponseWriter, r *http.Request) {
	var req pipeline.AddRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.dir.Add(r.Context(), req)
	switch {
	case errors.Is(err, pipeline.ErrMissingFields), errors.Is(err, dedup.ErrDuplicate):
		s.fail(w, http.StatusOK, err.Error())
	case err != nil:
		s.logger.Error("add pwa failed", zap.String("link", req.Link), zap.Error(err))
		s.fail(w, http.StatusOK, fmt.Sprintf("Failed to add PWA: %s", err))
	default:
		s.ok(w, res)
	}
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DiscoverRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.dir.Discover(r.Context(), req)
	if err != nil && summary.RunID == "" {
		s.logger.Error("pwa discovery failed", zap.Error(err))
		s.fail(w, http.StatusOK, fmt.Sprintf("Discovery failed: %s", err))
		return
	}
	// An interrupted run still reports what it managed to check.
	s.ok(w, discoverResponse{
		RunID:        summary.RunID,
		TotalDomains: summary.TotalDomains,
		Checked:      summary.Checked,
		Found:        summary.Found,
		Added:        summary.Added,
		Skipped:      summary.Skipped,
		Failed:       summary.Failed,
		DryRun:       summary.DryRun,
		Canceled:     summary.Canceled,
		FoundPWAs:    summary.FoundPWAs(),
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	page, err := s.dir.List(r.Context(), r.URL.Query().Get("cursor"))
	switch {
	case errors.Is(err, store.ErrInvalidCursor):
		s.fail(w, http.StatusBadRequest, "invalid cursor")
	case err != nil:
		s.logger.Error("list pwas failed", zap.Error(err))
		s.fail(w, http.StatusOK, fmt.Sprintf("Failed to list PWAs: %s", err))
	default:
		s.ok(w, toListResponse(page))
	}
}

// decode reads a JSON body, answering 400 itself when the body is unusable.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func toListResponse(page store.Page) listResponse {
	out := listResponse{
		Records:    make([]listItem, 0, len(page.Records)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
	for _, rec := range page.Records {
		tags := rec.Tags
		if tags == nil {
			tags = []string{}
		}
		out.Records = append(out.Records, listItem{
			ID:          rec.ID,
			Title:       rec.Title,
			Link:        rec.Link,
			Icon:        rec.Icon,
			Description: rec.Description,
			Tags:        tags,
			CreatedAt:   rec.CreatedAt,
		})
	}
	return out
}
