package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/domain/member"
	"github.com/oshokin/wallet-pass/internal/logger"
	"github.com/oshokin/wallet-pass/internal/repository/ledger"
	"github.com/oshokin/wallet-pass/internal/roster"
	"github.com/oshokin/wallet-pass/internal/runlock"
	"github.com/oshokin/wallet-pass/internal/signing"
)

// Options contains inputs for the generator entry point.
type Options struct {
	// ConfigPath is the YAML settings file; ignored when Config is set.
	ConfigPath string
	// Config replaces loading from ConfigPath.
	Config *config.Config

	// RosterPath, AssetsDir, OutputDir, Backend and AssetPolicy override the configuration when set.
	RosterPath  string
	AssetsDir   string
	OutputDir   string
	Backend     string
	AssetPolicy string
	// Workers overrides the configured parallelism when positive.
	Workers int

	// Signer replaces the configured signer backend.
	Signer signing.Signer
	// Ledger replaces the configured SQLite ledger.
	Ledger ledger.Repository
}

// runner holds everything a run shares between member pipelines.
// It is unexported; callers use Run.
type runner struct {
	// cfg is the validated, immutable configuration.
	cfg *config.Config
	// runID identifies this run in logs, scratch names and the ledger.
	runID string
	// signer signs every manifest.
	signer signing.Signer
	// ledger records issued archives; nil disables it.
	ledger ledger.Repository
	// closeLedger releases a ledger opened by the runner.
	closeLedger func() error
	// lock keeps other runs out of the output directory.
	lock *runlock.Lock
	// scratchRoot is the parent of member working directories.
	scratchRoot string
	// ownsScratchRoot marks a scratch root created by this run.
	ownsScratchRoot bool
}

var (
	// ErrIncomplete is returned when at least one member was skipped or failed.
	ErrIncomplete = errors.New("some passes were not generated")

	errDuplicateSlug = errors.New("another member has the same slug")
)

// Run executes the generation workflow. The summary is returned even when err is ErrIncomplete.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	if opts == nil {
		opts = new(Options)
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	runID := ulid.Make().String()

	// Set context with logger name and run id for tracking.
	ctx = logger.WithName(ctx, "wallet-pass")
	ctx = logger.ToContext(ctx, logger.FromContext(ctx).WithOptions(logger.WithRedaction(cfg.Signing.Password)))
	ctx = logger.WithKV(ctx, "run_id", runID)

	r, err := newRunner(ctx, cfg, runID, opts)
	if err != nil {
		return nil, err
	}

	defer r.cleanup(ctx)

	summary, err := r.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Generation failed", "error", err)

		return summary, err
	}

	if !summary.OK() {
		return summary, ErrIncomplete
	}

	return summary, nil
}

// resolveConfig loads the configuration and applies command-line overrides.
func resolveConfig(opts *Options) (*config.Config, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	} else {
		copied := *cfg
		cfg = &copied

		config.ApplyEnvironment(cfg)
	}

	override(&cfg.Paths.Roster, opts.RosterPath)
	override(&cfg.Paths.Assets, opts.AssetsDir)
	override(&cfg.Paths.Output, opts.OutputDir)
	override(&cfg.Signing.Backend, opts.Backend)
	override(&cfg.Generation.AssetPolicy, opts.AssetPolicy)

	if opts.Workers > 0 {
		cfg.Generation.Workers = opts.Workers
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func override(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// newRunner acquires the run lock and opens the signer, ledger and scratch space.
func newRunner(ctx context.Context, cfg *config.Config, runID string, opts *Options) (*runner, error) {
	r := &runner{
		cfg:    cfg,
		runID:  runID,
		signer: opts.Signer,
		ledger: opts.Ledger,
	}

	lock, err := runlock.Acquire(ctx, cfg.Paths.Output, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}

	r.lock = lock

	if err = r.open(ctx); err != nil {
		r.cleanup(ctx)

		return nil, err
	}

	return r, nil
}

func (r *runner) open(ctx context.Context) error {
	if r.signer == nil {
		signer, err := signing.New(&r.cfg.Signing)
		if err != nil {
			return err
		}

		r.signer = signer
	}

	if r.ledger == nil && r.cfg.Paths.Ledger != "" {
		repo, err := ledger.Open(ctx, r.cfg.Paths.Ledger)
		if err != nil {
			return err
		}

		r.ledger = repo
		r.closeLedger = repo.Close
	}

	if r.cfg.Paths.Scratch != "" {
		r.scratchRoot = r.cfg.Paths.Scratch

		return nil
	}

	root, err := os.MkdirTemp("", "wallet-pass-"+r.runID+"-")
	if err != nil {
		return fmt.Errorf("%w: create scratch root: %w", failure.ErrIO, err)
	}

	r.scratchRoot = root
	r.ownsScratchRoot = true

	return nil
}

// Run reads the roster and runs every member pipeline.
func (r *runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	logger.InfoKV(ctx, "Reading roster", "path", r.cfg.Paths.Roster)

	result, err := roster.ReadFile(r.cfg.Paths.Roster)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:   r.runID,
		Skipped: result.Skipped,
	}

	for _, rowErr := range result.Skipped {
		logger.WarnKV(ctx, "Skipping roster row", "line", rowErr.Line, "error", rowErr.Err)
	}

	logger.InfoKV(ctx, "Generating passes",
		"members", len(result.Members),
		"workers", r.cfg.Generation.Workers,
		"signer", r.cfg.Signing.Backend,
		"output", r.cfg.Paths.Output)

	outcomes := r.generateAll(ctx, result.Members)
	summary.add(outcomes)
	summary.Elapsed = time.Since(started)

	logger.InfoKV(ctx, "Generation finished",
		"succeeded", len(summary.Succeeded),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"elapsed", summary.Elapsed)

	return summary, nil
}

// generateAll runs the member pipelines with bounded parallelism.
// Each worker owns a private working directory, and outcomes keep roster order.
func (r *runner) generateAll(ctx context.Context, members []member.Record) []Outcome {
	outcomes := make([]Outcome, len(members))
	seen := make(map[string]int, len(members))

	var g errgroup.Group

	g.SetLimit(r.cfg.Generation.Workers)

	for i := range members {
		m := &members[i]
		slug := m.Slug()
		outcomes[i] = Outcome{Slug: slug, Name: m.FullName()}

		if first, dup := seen[slug]; dup {
			outcomes[i].Err = fmt.Errorf("%w: %s is already used by %s: %w",
				failure.ErrValidation, slug, outcomes[first].Name, errDuplicateSlug)
			logger.WarnKV(ctx, "Skipping member with a duplicate slug", "member", slug)

			continue
		}

		seen[slug] = i

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err

				return nil
			}

			outcomes[i].Archive, outcomes[i].Err = r.generate(ctx, m)
			if outcomes[i].Err != nil {
				logger.ErrorKV(ctx, "Pass generation failed",
					"member", slug,
					"kind", failure.Kind(outcomes[i].Err),
					"error", outcomes[i].Err)
			}

			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

// cleanup releases resources held by the run.
func (r *runner) cleanup(ctx context.Context) {
	if r.closeLedger != nil {
		if err := r.closeLedger(); err != nil {
			logger.WarnKV(ctx, "Failed to close ledger", "error", err)
		}
	}

	if r.ownsScratchRoot {
		if err := os.RemoveAll(r.scratchRoot); err != nil {
			logger.WarnKV(ctx, "Failed to remove scratch root", "path", r.scratchRoot, "error", err)
		}
	}

	if err := r.lock.Release(); err != nil {
		logger.WarnKV(ctx, "Failed to release run lock", "error", err)
	}

	logger.Debug(ctx, "The generator has been stopped")
}
