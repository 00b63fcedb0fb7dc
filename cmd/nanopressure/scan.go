package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/internal/pressure"
	"github.com/srg/nanopressure/internal/profile"
	"github.com/srg/nanopressure/internal/session"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print live pressure readings",
		Long: `Subscribe to the sensor's pressure notifications and print one
timestamped reading per notification until interrupted with Ctrl+C.

Readings go to stdout, logs and progress to stderr. By default each reading
overwrites the previous one on the same line; use --newline to keep them.`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}
	cmd.Flags().BoolP("newline", "n", false, "Terminate readings with a newline instead of a carriage return")
	cmd.Flags().Bool("color", false, "Colorize readings")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	return a.run(cmd.Context(), profile.ScanFields(), func(ctx context.Context, s *session.Session, chars *profile.Characteristics) error {
		format := pressure.NewOutputFormat(a.cfg.Newline, a.cfg.Color)
		scan := pressure.NewLiveScan(format, cmd.OutOrStdout(), a.logger)
		return scan.Run(ctx, s.Connection(), chars.Get(profile.PressureValue))
	})
}
