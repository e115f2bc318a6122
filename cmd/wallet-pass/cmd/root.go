package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/logger"
	"github.com/oshokin/wallet-pass/internal/service/generator"
	"github.com/oshokin/wallet-pass/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimum level written to stdout.
	logLevel string
	// options collects command-line overrides of the configuration.
	options generator.Options

	errUnknownLogLevel = errors.New("unknown log level")

	// rootCmd represents the base command for generating passes.
	rootCmd = &cobra.Command{
		Use:   "wallet-pass",
		Short: "Generate signed Apple Wallet contact passes.",
		Long: `Reads the team roster and produces one signed .pkpass archive per member.

Every member is processed in a private working directory: the pass descriptor
is built, image assets are copied, the SHA-1 manifest is written and signed
with the PKCS#12 identity, and the archive is installed into the output folder.
The certificate password is read from ` + config.PasswordEnv + ` (a .env file is honoured).

The command exits with a non-zero status if any member was skipped or failed.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel(logLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			opts.ConfigPath = configPath

			summary, err := generator.Run(ctx, &opts)
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}

			return err
		},
	}
)

// Execute runs the wallet-pass CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyLogLevel(s string) error {
	level, ok := logger.ParseLogLevel(s)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, s)
	}

	logger.SetLevel(level)

	return nil
}

func printSummary(w io.Writer, s *generator.Summary) {
	_, _ = fmt.Fprintf(w, "Run %s: %d generated, %d failed, %d skipped in %s\n",
		s.RunID, len(s.Succeeded), len(s.Failed), len(s.Skipped), s.Elapsed.Round(time.Millisecond))

	for i := range s.Succeeded {
		_, _ = fmt.Fprintf(w, "  ok      %s\n", s.Succeeded[i].Archive.Path)
	}

	for i := range s.Failed {
		_, _ = fmt.Fprintf(w, "  failed  %s (%s)\n", s.Failed[i].Slug, s.Failed[i].Kind())
	}

	for _, row := range s.Skipped {
		_, _ = fmt.Fprintf(w, "  skipped line %d\n", row.Line)
	}

	byKind := s.FailuresByKind()

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	for _, kind := range kinds {
		_, _ = fmt.Fprintf(w, "  %s failures: %d\n", kind, byKind[kind])
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&options.RosterPath, "roster", "", "roster CSV file (overrides paths.roster)")
	flags.StringVar(&options.AssetsDir, "assets", "", "image assets directory (overrides paths.assets)")
	flags.StringVarP(&options.OutputDir, "output", "o", "", "output directory for .pkpass archives (overrides paths.output)")
	flags.IntVarP(&options.Workers, "workers", "w", 0, "members processed in parallel (overrides generation.workers)")
	flags.StringVar(&options.Backend, "signer", "", "signer backend: native or openssl (overrides signing.backend)")
	flags.StringVar(&options.AssetPolicy, "asset-policy", "", "missing required asset: warn or reject (overrides generation.asset_policy)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
}
