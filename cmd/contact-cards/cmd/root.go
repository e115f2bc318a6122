package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/wallet-pass/internal/config"
	"github.com/oshokin/wallet-pass/internal/service/contacts"
	"github.com/oshokin/wallet-pass/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// options collects command-line overrides of the configuration.
	options contacts.Options

	// rootCmd represents the base command for writing contact cards.
	rootCmd = &cobra.Command{
		Use:   "contact-cards",
		Short: "Write vCard contact cards for the team roster.",
		Long: `Reads the same roster as wallet-pass and writes one vCard 3.0 file per member.

Cards are named after the member slug, so jane-doe.vcf sits next to the
jane-doe.html page the pass barcode points at.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			opts.ConfigPath = configPath

			summary, err := contacts.Run(ctx, &opts)
			if summary != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d written, %d failed, %d skipped\n",
					len(summary.Written), len(summary.Failed), len(summary.Skipped))
			}

			return err
		},
	}
)

// Execute runs the contact-cards CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&options.RosterPath, "roster", "", "roster CSV file (overrides paths.roster)")
	rootCmd.Flags().StringVarP(&options.OutputDir, "output", "o", "", "output directory for .vcf files (overrides paths.contacts)")
}
