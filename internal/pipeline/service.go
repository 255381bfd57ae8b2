// Package pipeline implements the directory operations on top of the
// classifier, the source aggregator, the batch runner and the record store:
// single-URL checks and adds, plus the discover, crawl, import, describe and
// dedupe batch runs.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/batch"
	"github.com/JakeFAU/pwa-discovery/internal/classifier"
	"github.com/JakeFAU/pwa-discovery/internal/crawler"
	"github.com/JakeFAU/pwa-discovery/internal/dedup"
	"github.com/JakeFAU/pwa-discovery/internal/extract"
	"github.com/JakeFAU/pwa-discovery/internal/progress"
	"github.com/JakeFAU/pwa-discovery/internal/store"
)

var (
	// ErrMissingURL rejects checks without a target.
	ErrMissingURL = errors.New("url is required")
	// ErrMissingFields rejects adds without the required entry fields.
	ErrMissingFields = errors.New("title, link, and icon are required")
	// ErrInvalidRequest rejects negative limits and offsets.
	ErrInvalidRequest = errors.New("invalid request")
)

// EventPWAAdded is published for every entry written to the record store.
const EventPWAAdded = "pwa.added"

const archiveTimeout = 30 * time.Second

// CandidateSource produces candidate domains for a source selector.
type CandidateSource interface {
	Aggregate(ctx context.Context, source string, limit int) ([]string, error)
}

// RunIDGenerator mints run identifiers.
type RunIDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Deps are the collaborators shared by every operation. Checker, Store and
// IDs are required; the rest fall back to no-op behavior when nil.
type Deps struct {
	Checker   classifier.Strategy
	Fetcher   crawler.Fetcher
	Extractor extract.Extractor
	Store     store.RecordStore
	Sources   CandidateSource
	Limiter   crawler.Limiter
	Blobs     crawler.BlobStore
	Publisher crawler.Publisher
	Progress  progress.Emitter
	Clock     crawler.Clock
	IDs       RunIDGenerator
	Logger    *zap.Logger
}

// DiscoverSettings holds discover defaults.
type DiscoverSettings struct {
	Source          string
	Limit           int
	Offset          int
	Concurrency     int
	Delay           time.Duration
	CheckpointEvery int
	HistoryPath     string
	Tags            []string
	SeenFilterPath  string
}

// CrawlSettings holds crawl defaults.
type CrawlSettings struct {
	Source               string
	DataPath             string
	CandidatesPath       string
	Concurrency          int
	Timeout              time.Duration
	RequireServiceWorker bool
}

// ImportSettings holds import defaults.
type ImportSettings struct {
	Concurrency int
	Delay       time.Duration
	Tags        []string
}

// DescribeSettings holds description backfill defaults.
type DescribeSettings struct {
	Concurrency int
	ItemDelay   time.Duration
	BatchDelay  time.Duration
	Timeout     time.Duration
}

// Settings are per-operation defaults, normally taken from config.
type Settings struct {
	// Database names the record store collection.
	Database string
	// Mode and Concurrency drive runs without their own section (dedupe).
	Mode          batch.Mode
	Concurrency   int
	ArchivePrefix string
	AddTags       []string
	Discover      DiscoverSettings
	Crawl         CrawlSettings
	Import        ImportSettings
	Describe      DescribeSettings
}

// DefaultSettings mirrors the config defaults.
func DefaultSettings() Settings {
	return Settings{
		Database:      "pwas",
		Mode:          batch.ModeChunked,
		Concurrency:   batch.DefaultConcurrency,
		ArchivePrefix: "runs",
		AddTags:       []string{"Uncategorized"},
		Discover: DiscoverSettings{
			Source:          "tranco",
			Limit:           500,
			Concurrency:     3,
			Delay:           1500 * time.Millisecond,
			CheckpointEvery: 10,
			HistoryPath:     "data/discover-results.json",
			Tags:            []string{"Auto-discovered"},
		},
		Crawl: CrawlSettings{
			Source:      "github",
			DataPath:    "data/pwa.json",
			Concurrency: 5,
			Timeout:     10 * time.Second,
		},
		Import: ImportSettings{
			Concurrency: 3,
			Delay:       500 * time.Millisecond,
			Tags:        []string{"Imported"},
		},
		Describe: DescribeSettings{
			Concurrency: 3,
			ItemDelay:   time.Second,
			BatchDelay:  2 * time.Second,
			Timeout:     10 * time.Second,
		},
	}
}

// Service runs the directory operations.
type Service struct {
	deps     Deps
	settings Settings
	gate     *dedup.Gate
	logger   *zap.Logger
}

// New validates deps and builds a Service.
func New(deps Deps, settings Settings) (*Service, error) {
	if deps.Checker == nil {
		return nil, errors.New("checker is required")
	}
	if deps.Store == nil {
		return nil, errors.New("record store is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewRegex()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		deps:     deps,
		settings: settings,
		gate:     dedup.NewGate(deps.Store, settings.Database),
		logger:   deps.Logger,
	}, nil
}

// Strategy reports the name of the configured classifier.
func (s *Service) Strategy() string {
	return s.deps.Checker.Name()
}

func (s *Service) now() time.Time {
	if s.deps.Clock != nil {
		return s.deps.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// run is the bookkeeping for one batch operation.
type run struct {
	id       uuid.UUID
	op       string
	started  time.Time
	reporter *progress.Reporter
	logger   *zap.Logger
}

func (s *Service) beginRun(op string, total int) (*run, error) {
	id, err := s.deps.IDs.NewRawID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	r := &run{
		id:      id,
		op:      op,
		started: s.now(),
		reporter: &progress.Reporter{
			Emitter: s.deps.Progress,
			RunID:   id,
			Op:      op,
			Now:     s.now,
		},
		logger: s.logger.Named(op).With(zap.String("run_id", id.String())),
	}
	r.reporter.Emit(progress.Event{Stage: progress.StageRunStart, Total: total})
	return r, nil
}

// endRun emits the terminal progress event and archives the summary. runErr
// is the error the operation is about to return, if any.
func (s *Service) endRun(ctx context.Context, r *run, sum crawler.Summary, summary any, runErr error) {
	evt := progress.Event{
		Stage: progress.StageRunDone,
		Done:  sum.Processed,
		Total: sum.Total,
		Dur:   s.now().Sub(r.started),
	}
	if runErr != nil {
		evt.Stage = progress.StageRunError
		evt.Note = runErr.Error()
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			evt.Note = progress.NoteCanceled
		}
	}
	r.reporter.Emit(evt)
	s.archive(ctx, r, "", summary)
}

// archive writes v as JSON under <prefix>/<op>/<run id><suffix>.json. It runs
// on a detached context so canceled runs still leave a record.
func (s *Service) archive(ctx context.Context, r *run, suffix string, v any) {
	if s.deps.Blobs == nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.Warn("encode run archive", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	key := path.Join(s.settings.ArchivePrefix, r.op, r.id.String()+suffix+".json")
	uri, err := s.deps.Blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data))
	if err != nil {
		r.logger.Warn("archive run", zap.String("path", key), zap.Error(err))
		return
	}
	r.logger.Debug("run archived", zap.String("uri", uri))
}

// AddedEvent is the payload published for each new directory entry.
type AddedEvent struct {
	ID    string   `json:"id"`
	Op    string   `json:"op"`
	RunID string   `json:"runId,omitempty"`
	Title string   `json:"title"`
	Link  string   `json:"link"`
	Icon  string   `json:"icon"`
	Tags  []string `json:"tags,omitempty"`
	At    string   `json:"at"`
}

// notifyAdded publishes an AddedEvent. Publish failures are logged only.
func (s *Service) notifyAdded(ctx context.Context, op, runID, id string, entry store.Entry) {
	if s.deps.Publisher == nil {
		return
	}
	payload := AddedEvent{
		ID:    id,
		Op:    op,
		RunID: runID,
		Title: entry.Title,
		Link:  entry.Link,
		Icon:  entry.Icon,
		Tags:  entry.Tags,
		At:    s.now().Format(time.RFC3339),
	}
	if _, err := s.deps.Publisher.Publish(ctx, EventPWAAdded, payload); err != nil {
		s.logger.Warn("publish added event",
			zap.String("op", op),
			zap.String("link", entry.Link),
			zap.Error(err),
		)
	}
}

// interrupted wraps ctx's error when the run stopped early.
func interrupted(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s interrupted: %w", op, err)
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
