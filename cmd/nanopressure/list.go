package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/internal/device"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List nearby devices above the RSSI threshold",
		Long: `Scan for --timeout and print every device whose signal is stronger
than --rssi, strongest first. Use an address from this list with --addr.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.release()

	loc, err := a.newLocator()
	if err != nil {
		return err
	}

	progress := NewCountdownProgressPrinter(a.progressOut(), "Scanning for devices", "Scanning", a.cfg.Timeout)
	progress.Start()
	devices, err := loc.Discover(cmd.Context(), a.cfg.Timeout, a.cfg.MinRSSI)
	progress.Stop()
	if err != nil {
		return err
	}

	infos := make([]device.DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = d
	}
	printDevices(cmd.OutOrStdout(), infos)
	return nil
}
