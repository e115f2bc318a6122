package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	// Register the PNG decoder for image.DecodeConfig.
	_ "image/png"

	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/logger"
)

// Policy decides what happens when a required asset is missing.
type Policy string

const (
	// PolicyWarn logs missing required assets and packages whatever exists.
	PolicyWarn Policy = "warn"
	// PolicyReject fails the member when a required asset is missing.
	PolicyReject Policy = "reject"
)

// Options tunes a Collect call.
type Options struct {
	// Policy applies to missing required assets. Empty means PolicyWarn.
	Policy Policy
	// CheckDimensions compares PNG headers with the capability table and warns about oversized images.
	CheckDimensions bool
}

// Destination is where collected files are created.
type Destination interface {
	Create(name string) (*os.File, error)
}

// errMissingRequired is returned under PolicyReject.
var errMissingRequired = errors.New("required asset is missing")

// Collect copies every capability found in sourceDir into dst, in table order,
// and returns the names that were copied. Absent optional files are skipped silently.
func Collect(ctx context.Context, dst Destination, sourceDir string, opts Options) ([]string, error) {
	present := make([]string, 0, len(capabilities))

	for _, c := range capabilities {
		src := filepath.Join(sourceDir, c.Name)

		info, err := os.Stat(src)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if !c.Required {
				continue
			}

			if opts.Policy == PolicyReject {
				return present, fmt.Errorf("%w: %s: %w", failure.ErrIO, c.Name, errMissingRequired)
			}

			logger.WarnKV(ctx, "Required asset is missing, packaging without it", "asset", c.Name)

			continue
		case err != nil:
			return present, fmt.Errorf("%w: stat %s: %w", failure.ErrIO, c.Name, err)
		case info.IsDir():
			return present, fmt.Errorf("%w: %s is a directory", failure.ErrIO, c.Name)
		}

		if err = copyFile(dst, src, c.Name); err != nil {
			return present, err
		}

		present = append(present, c.Name)

		if opts.CheckDimensions {
			checkDimensions(ctx, src, c)
		}
	}

	logger.DebugKV(ctx, "Assets collected", "present", present)

	return present, nil
}

func copyFile(dst Destination, src, name string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", failure.ErrIO, name, err)
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := dst.Create(name)
	if err != nil {
		return fmt.Errorf("%w: %w", failure.ErrIO, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("%w: copy %s: %w", failure.ErrIO, name, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", failure.ErrIO, name, err)
	}

	return nil
}

// checkDimensions logs images that are larger than their capability allows.
func checkDimensions(ctx context.Context, path string, c Capability) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}

	defer func() {
		_ = f.Close()
	}()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		logger.WarnKV(ctx, "Asset is not a readable image", "asset", c.Name, "error", err)
		return
	}

	if format != "png" {
		logger.WarnKV(ctx, "Asset is not a PNG image", "asset", c.Name, "format", format)
	}

	if cfg.Width > c.Width || cfg.Height > c.Height {
		logger.WarnKV(ctx, "Asset exceeds its nominal size",
			"asset", c.Name,
			"width", cfg.Width,
			"height", cfg.Height,
			"max_width", c.Width,
			"max_height", c.Height)
	}
}
