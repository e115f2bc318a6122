package contacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/logger"
	"github.com/oshokin/wallet-pass/internal/roster"
)

// Options contains inputs for the contact card entry point.
type Options struct {
	// ConfigPath is the YAML settings file; ignored when Config is set.
	ConfigPath string
	// Config replaces loading from ConfigPath.
	Config *config.Config
	// RosterPath and OutputDir override the configuration when set.
	RosterPath string
	OutputDir  string
}

// Summary tallies a contact card run.
type Summary struct {
	// Written are the card paths in roster order.
	Written []string
	// Failed are the members whose card was not written, in roster order.
	Failed []Failure
	// Skipped are roster rows rejected by validation.
	Skipped []*roster.RowError
}

// Failure explains why a member has no card.
type Failure struct {
	Slug string
	Err  error
}

// OK reports whether every roster row produced a card.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Skipped) == 0
}

const (
	dirPermissions  = 0o750
	filePermissions = 0o644
)

var (
	// ErrIncomplete is returned when at least one member was skipped or failed.
	ErrIncomplete = errors.New("some contact cards were not written")

	errDuplicateSlug = errors.New("another member has the same slug")
)

// Run writes <slug>.vcf for every valid roster member.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	if opts == nil {
		opts = new(Options)
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	rosterPath := or(opts.RosterPath, cfg.Paths.Roster)
	outputDir := or(opts.OutputDir, cfg.Paths.Contacts)

	ctx = logger.WithName(ctx, "contact-cards")

	result, err := roster.ReadFile(rosterPath)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(outputDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", failure.ErrIO, outputDir, err)
	}

	summary := &Summary{Skipped: result.Skipped}

	for _, rowErr := range result.Skipped {
		logger.WarnKV(ctx, "Skipping roster row", "line", rowErr.Line, "error", rowErr.Err)
	}

	seen := make(map[string]string, len(result.Members))

	for i := range result.Members {
		m := &result.Members[i]
		slug := m.Slug()

		if owner, dup := seen[slug]; dup {
			summary.Failed = append(summary.Failed, Failure{
				Slug: slug,
				Err: fmt.Errorf("%w: %s is already used by %s: %w",
					failure.ErrValidation, slug, owner, errDuplicateSlug),
			})
			logger.WarnKV(ctx, "Skipping member with a duplicate slug", "member", slug)

			continue
		}

		seen[slug] = m.FullName()

		path := filepath.Join(outputDir, Filename(slug))
		if err = os.WriteFile(path, Encode(m, cfg.Defaults.CompanyName), filePermissions); err != nil {
			summary.Failed = append(summary.Failed, Failure{
				Slug: slug,
				Err:  fmt.Errorf("%w: write %s: %w", failure.ErrIO, path, err),
			})
			logger.ErrorKV(ctx, "Contact card failed", "member", slug, "error", err)

			continue
		}

		summary.Written = append(summary.Written, path)
		logger.DebugKV(ctx, "Contact card written", "member", slug, "path", path)
	}

	logger.InfoKV(ctx, "Contact cards finished",
		"written", len(summary.Written),
		"failed", len(summary.Failed),
		"skipped", len(summary.Skipped),
		"output", outputDir)

	if !summary.OK() {
		return summary, ErrIncomplete
	}

	return summary, nil
}
