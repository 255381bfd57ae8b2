// Package cmd defines and implements the CLI commands for the pwacrawler executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/pwa-discovery/internal/config"
	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
	"github.com/JakeFAU/pwa-discovery/internal/pwa"
	"github.com/JakeFAU/pwa-discovery/internal/server"
)

const closeTimeout = 15 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Directory is the set of operations the subcommands drive.
type Directory interface {
	Check(ctx context.Context, target string) (pwa.CheckResponse, error)
	Add(ctx context.Context, req pipeline.AddRequest) (pipeline.AddResult, error)
	Discover(ctx context.Context, req pipeline.DiscoverRequest) (pipeline.DiscoverSummary, error)
	Crawl(ctx context.Context, req pipeline.CrawlRequest) (pipeline.CrawlSummary, error)
	Import(ctx context.Context, req pipeline.ImportRequest) (pipeline.RunSummary, error)
	Describe(ctx context.Context, req pipeline.DescribeRequest) (pipeline.RunSummary, error)
	Dedupe(ctx context.Context, req pipeline.DedupeRequest) (pipeline.RunSummary, error)
}

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Directory() Directory
	Logger() *zap.Logger
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

// appFactory builds the application from a config file path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

type builtApp struct {
	*server.App
}

func (a builtApp) Directory() Directory {
	return a.Service()
}

func buildApp(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return builtApp{app}, nil
}

// lifecycle closes the app exactly once, whether the command succeeded or not.
type lifecycle struct {
	mu   sync.Mutex
	app  App
	once sync.Once
}

func (l *lifecycle) set(app App) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.app = app
}

func (l *lifecycle) close() {
	l.mu.Lock()
	app := l.app
	l.mu.Unlock()
	if app == nil {
		return
	}
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			app.Logger().Warn("failed to close application", zap.Error(err))
		}
	})
}

// newRootCmd creates and configures the root command.
func newRootCmd(factory appFactory, lc *lifecycle) *cobra.Command {
	var (
		cfgFile string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "pwacrawler",
		Short: "Discovers and catalogs Progressive Web Apps.",
		Long: `pwacrawler finds installable Progressive Web Apps across ranked domain
lists and curated link lists, checks each site's manifest and service worker,
and records the ones that qualify in the PWA directory.`,
		SilenceUsage: true,

		// Builds and injects the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("--format must be json or yaml, got %q", format)
			}
			appInstance, err := factory(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			lc.set(appInstance)

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			ctx = context.WithValue(ctx, formatKey, format)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			lc.close()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env PWACRAWLER_* overrides)")
	cmd.PersistentFlags().StringVar(&format, "format", "json", "output format: json or yaml")

	cmd.AddCommand(
		newCheckCmd(),
		newAddCmd(),
		newDiscoverCmd(),
		newCrawlCmd(),
		newImportCmd(),
		newDescribeCmd(),
		newDedupeCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	lc := &lifecycle{}
	err := newRootCmd(buildApp, lc).ExecuteContext(ctx)
	lc.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

type formatKeyType string

const formatKey formatKeyType = "format"

// printResult renders v as indented JSON, or as YAML keyed by the same
// field names.
func printResult(cmd *cobra.Command, v any) error {
	format, _ := cmd.Context().Value(formatKey).(string)
	return render(cmd.OutOrStdout(), format, v)
}

func render(w io.Writer, format string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if format != "yaml" {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
