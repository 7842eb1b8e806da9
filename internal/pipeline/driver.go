package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/warble-io/warble/internal/config"
	"github.com/warble-io/warble/internal/ingest"
	"github.com/warble-io/warble/internal/scan"
	"github.com/warble-io/warble/internal/transform"
	"github.com/warble-io/warble/internal/warehouse"
)

// Sentinel errors for the pipeline driver.
var (
	// ErrNoLoader is returned when a runner is created without a loader.
	// Matches the run's global precondition: no database capability, no run.
	ErrNoLoader = errors.New("no warehouse loader available")

	// ErrRunFailed wraps fatal run errors (bad root path, lost connection).
	ErrRunFailed = errors.New("pipeline run failed")
)

type (
	// Loader is what the driver needs from the warehouse: per-file
	// transactional loads of catalog dimensions and of event-log rows. The
	// concrete PostgreSQL implementation lives in internal/warehouse; the
	// driver only depends on this interface, so its sequencing logic is
	// testable without a live database.
	Loader interface {
		// LoadCatalogFile loads one catalog file's song and artist rows in
		// one committed transaction, idempotently on their natural keys.
		LoadCatalogFile(ctx context.Context, song transform.Song, artist transform.Artist) error

		// LoadEventFile loads one log file's time, user and fact rows in one
		// committed transaction. Rows are applied in the given order.
		LoadEventFile(
			ctx context.Context,
			times []transform.TimeRow,
			users []transform.User,
			plays []transform.Songplay,
		) error
	}

	// Runner orchestrates one ETL run: catalog tree first, then the log
	// tree, one file at a time, strictly sequentially. It owns the loader
	// (and through it the database connection) for the lifetime of the run.
	Runner struct {
		loader Loader
		cfg    *Config
		logger *slog.Logger
	}

	// TreeResult summarizes one input tree's processing.
	TreeResult struct {
		Found     int
		Processed int
		Failed    int
	}

	// Result summarizes a whole run.
	Result struct {
		RunID   string
		Catalog TreeResult
		Events  TreeResult
	}
)

// NewRunner creates a pipeline runner. Returns ErrNoLoader when loader is
// nil and a validation error when the run configuration is unusable; both
// are checked up front because they are fatal before any file is touched.
func NewRunner(loader Loader, cfg *Config) (*Runner, error) {
	if loader == nil {
		return nil, ErrNoLoader
	}

	if cfg == nil {
		cfg = LoadConfig(DefaultConfigPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		loader: loader,
		cfg:    cfg,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Run executes the pipeline: the whole catalog tree, then the whole log
// tree. Catalog data must be in place before log processing starts,
// otherwise every fact would resolve to NULL song/artist.
//
// A single file's failure is logged and skipped; the run continues with the
// next file. A missing root directory or a lost database connection is fatal
// and returns an error wrapping the cause (scan.ErrPathNotFound,
// warehouse.ErrConnectivity).
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}

	logger := r.logger.With(slog.String("run_id", result.RunID))

	logger.Info("Starting warehouse run",
		slog.String("song_dir", r.cfg.SongDir),
		slog.String("log_dir", r.cfg.LogDir),
		slog.String("extension", r.cfg.Extension),
	)

	if err := r.processTree(ctx, logger, r.cfg.SongDir, r.processSongFile, &result.Catalog); err != nil {
		return result, fmt.Errorf("%w: catalog tree: %w", ErrRunFailed, err)
	}

	if err := r.processTree(ctx, logger, r.cfg.LogDir, r.processLogFile, &result.Events); err != nil {
		return result, fmt.Errorf("%w: log tree: %w", ErrRunFailed, err)
	}

	logger.Info("Warehouse run complete",
		slog.Int("catalog_processed", result.Catalog.Processed),
		slog.Int("catalog_failed", result.Catalog.Failed),
		slog.Int("event_processed", result.Events.Processed),
		slog.Int("event_failed", result.Events.Failed),
	)

	return result, nil
}

// processTree discovers files under root and applies process to each, in
// order, committing per file (the loader commits inside each call). Per-file
// errors are isolated unless they signal a fatal condition.
func (r *Runner) processTree(
	ctx context.Context,
	logger *slog.Logger,
	root string,
	process func(ctx context.Context, path string) error,
	tree *TreeResult,
) error {
	files, err := scan.FindFiles(root, r.cfg.Extension)
	if err != nil {
		return err
	}

	tree.Found = len(files)

	logger.Info(fmt.Sprintf("%d files found in %s", len(files), root))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := process(ctx, path); err != nil {
			if isFatal(err) {
				return err
			}

			tree.Failed++

			logger.Warn("File failed, continuing with next",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)

			continue
		}

		tree.Processed++

		logger.Info(fmt.Sprintf("%d/%d files processed", i+1, len(files)))
	}

	return nil
}

func (r *Runner) processSongFile(ctx context.Context, path string) error {
	record, err := ingest.ReadSongFile(path)
	if err != nil {
		return err
	}

	song, artist := transform.SongDimensions(record)

	return r.loader.LoadCatalogFile(ctx, song, artist)
}

func (r *Runner) processLogFile(ctx context.Context, path string) error {
	events, err := ingest.ReadLogFile(path)
	if err != nil {
		return err
	}

	// A fully filtered file is valid: nothing to load, still processed.
	if len(events) == 0 {
		return nil
	}

	times, users, plays := transform.EventRows(events)

	return r.loader.LoadEventFile(ctx, times, users, plays)
}

// isFatal reports whether a per-file error is actually a run-level failure.
// Connection loss means no further file can succeed, so the run stops
// instead of uselessly failing every remaining file.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, warehouse.ErrConnectivity) ||
		errors.Is(err, warehouse.ErrNoDatabaseConnection)
}
