package generator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oshokin/wallet-pass/internal/asset"
	"github.com/oshokin/wallet-pass/internal/bundle"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/domain/member"
	"github.com/oshokin/wallet-pass/internal/domain/pass"
	"github.com/oshokin/wallet-pass/internal/logger"
	"github.com/oshokin/wallet-pass/internal/manifest"
	"github.com/oshokin/wallet-pass/internal/repository/ledger"
	"github.com/oshokin/wallet-pass/internal/version"
	"github.com/oshokin/wallet-pass/internal/workspace"
)

// generate runs one member through descriptor, assets, manifest, signature and
// archive. The working directory is removed on every exit path.
func (r *runner) generate(ctx context.Context, m *member.Record) (*bundle.Archive, error) {
	slug := m.Slug()
	ctx = logger.WithKV(ctx, "member", slug)
	started := time.Now()

	ws, err := workspace.New(r.scratchRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrIO, err)
	}

	defer func() {
		if cleanupErr := ws.Cleanup(); cleanupErr != nil {
			logger.WarnKV(ctx, "Failed to clean up working directory", "path", ws.Dir(), "error", cleanupErr)
		}
	}()

	descriptor := pass.Build(m, r.cfg, pass.WithAuthenticationToken(r.authenticationToken(ctx, slug)))

	encoded, err := pass.Encode(descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrValidation, err)
	}

	if err = pass.ValidateSchema(encoded); err != nil {
		return nil, err
	}

	if err = ws.WriteFile(pass.Filename, encoded); err != nil {
		return nil, fmt.Errorf("%w: %w", failure.ErrIO, err)
	}

	present, err := asset.Collect(ctx, ws, r.cfg.Paths.Assets, asset.Options{
		Policy:          asset.Policy(r.cfg.Generation.AssetPolicy),
		CheckDimensions: r.cfg.Generation.CheckDimensions,
	})
	if err != nil {
		return nil, err
	}

	if _, err = manifest.Build(ws, present); err != nil {
		return nil, err
	}

	if _, err = r.signer.Sign(ctx, ws); err != nil {
		return nil, err
	}

	archive, err := bundle.Package(ctx, ws, present, filepath.Join(r.cfg.Paths.Output, bundle.Filename(slug)))
	if err != nil {
		return nil, err
	}

	r.record(ctx, descriptor, slug, archive)

	logger.InfoKV(ctx, "Pass generated",
		"path", archive.Path,
		"assets", len(present),
		"elapsed", time.Since(started))

	return archive, nil
}

// authenticationToken reuses the token of the previous pass for slug so
// installed passes keep talking to the web service. It is empty without one.
func (r *runner) authenticationToken(ctx context.Context, slug string) string {
	if r.cfg.Pass.WebServiceURL == "" {
		return ""
	}

	if r.ledger != nil {
		previous, err := r.ledger.LatestBySlug(ctx, slug)

		switch {
		case err == nil && previous.AuthenticationToken != "":
			return previous.AuthenticationToken
		case err != nil && !errors.Is(err, ledger.ErrNotFound):
			logger.WarnKV(ctx, "Failed to look up previous pass, issuing a new token", "error", err)
		}
	}

	return pass.NewAuthenticationToken()
}

// record stores the issued archive. The archive is already installed, so a
// ledger failure is logged and does not fail the member.
func (r *runner) record(ctx context.Context, d *pass.Descriptor, slug string, archive *bundle.Archive) {
	if r.ledger == nil {
		return
	}

	err := r.ledger.Record(ctx, &ledger.Entry{
		SerialNumber:        d.SerialNumber,
		Slug:                slug,
		AuthenticationToken: d.AuthenticationToken,
		ArchiveChecksum:     archive.Checksum,
		RunID:               r.runID,
		GeneratorVersion:    version.Short(),
	})
	if err != nil {
		logger.WarnKV(ctx, "Failed to record issued pass", "error", err)
	}
}
