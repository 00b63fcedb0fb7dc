package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/internal/pressure"
	"github.com/srg/nanopressure/internal/profile"
	"github.com/srg/nanopressure/internal/samplefile"
	"github.com/srg/nanopressure/internal/session"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Drain the sensor's history buffer to a file",
		Long: `Read every buffered sample from the sensor, convert the device-relative
timestamps to wall-clock time and write the result to a file.

Interrupting with Ctrl+C stops the drain; samples read so far are still
stamped and written.`,
		Args: cobra.NoArgs,
		RunE: runDownload,
	}
	cmd.Flags().StringP("filename", "f", "pressure.txt", "Output file")
	cmd.Flags().BoolP("overwrite", "o", false, "Overwrite the output file instead of appending")
	cmd.Flags().String("format", "text", "Output format (text, jsonl)")
	return cmd
}

func runDownload(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	format, err := samplefile.ParseFormat(a.cfg.Format)
	if err != nil {
		return err
	}
	writer := &samplefile.Writer{Path: a.cfg.Filename, Overwrite: a.cfg.Overwrite, Format: format}

	return a.run(cmd.Context(), profile.DownloadFields(), func(ctx context.Context, _ *session.Session, chars *profile.Characteristics) error {
		drainer := pressure.NewDrainer(chars.Get(profile.PressureHistory), chars.Get(profile.PressureCounts), a.logger)
		progress := newReadProgress(a.progressOut())
		drainer.Progress = progress.Update

		download := &pressure.Download{
			Drainer: drainer,
			Clock:   pressure.NewClock(chars.Get(profile.DeviceTime), a.logger),
		}
		set, runErr := download.Run(ctx)
		progress.Done()

		if set == nil || set.Len() == 0 {
			return runErr
		}

		n, err := writer.Write(set)
		if err != nil {
			return err
		}
		a.logger.WithFields(logrus.Fields{
			"file":    writer.Path,
			"samples": n,
			"format":  writer.Format,
		}).Info("Samples written")
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s\n", n, writer.Path)
		return runErr
	})
}
