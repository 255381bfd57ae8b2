package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/metrics"
)

// Source selectors.
const (
	SourceTranco = "tranco"
	SourceGitHub = "github"
	SourceAll    = "all"
)

var (
	// ErrNoDomains is returned when every selected source came back empty.
	ErrNoDomains = errors.New("No domains could be fetched from any source") //nolint:staticcheck // user-facing message
	// ErrInvalidSource rejects unknown source selectors.
	ErrInvalidSource = errors.New("invalid source")
)

// ValidSource reports whether name selects a known source.
func ValidSource(name string) bool {
	switch strings.ToLower(name) {
	case SourceTranco, SourceGitHub, SourceAll:
		return true
	default:
		return false
	}
}

// Aggregator combines the configured sources.
type Aggregator struct {
	tranco   *Tranco
	markdown *Markdown
	logger   *zap.Logger
}

// NewAggregator wires the sources together.
func NewAggregator(tranco *Tranco, markdown *Markdown, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{tranco: tranco, markdown: markdown, logger: logger}
}

// Aggregate gathers candidates from the selected source(s), merged and
// deduplicated by host. limit bounds the Tranco fetch.
func (a *Aggregator) Aggregate(ctx context.Context, source string, limit int) ([]string, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = SourceTranco
	}
	if !ValidSource(source) {
		return nil, fmt.Errorf("%w: %q (want tranco, github, or all)", ErrInvalidSource, source)
	}

	var lists [][]string
	if source == SourceTranco || source == SourceAll {
		domains := a.tranco.Fetch(ctx, limit)
		metrics.ObserveSourceDomains(SourceTranco, len(domains))
		lists = append(lists, domains)
	}
	if source == SourceGitHub || source == SourceAll {
		urls := a.markdown.Fetch(ctx)
		metrics.ObserveSourceDomains(SourceGitHub, len(urls))
		lists = append(lists, urls)
	}

	empty := true
	for _, l := range lists {
		if len(l) > 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil, ErrNoDomains
	}

	merged := MergeAndDeduplicate(lists...)
	a.logger.Info("collected candidates",
		zap.String("source", source),
		zap.Int("count", len(merged)),
	)
	return merged, nil
}
