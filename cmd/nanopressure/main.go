package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/internal/device"
	goble "github.com/srg/nanopressure/internal/device/go-ble"
	"github.com/srg/nanopressure/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Hardware seams, replaced in tests.
var (
	newScanner = goble.NewScanner
	newDevice  = func(adv device.Advertisement, logger *logrus.Logger) device.Device {
		return goble.NewBLEDeviceFromAdvertisement(adv, logger)
	}
	releaseTransport = goble.ReleaseSharedDevice
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nanopressure",
		Short: "BLE barometric pressure sensor client",
		Long: `Client for a BLE barometric pressure sensor:

- scan: print live pressure notifications until interrupted
- download: drain the on-device history buffer and stamp it with wall-clock time
- list: show nearby devices that pass the RSSI filter

Without --addr the strongest device above --rssi is used. When several
devices qualify an interactive prompt asks which one to use.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
	}

	// Silence Cobra's "Error:" prefix - main() prints clean errors
	root.SilenceErrors = true

	defaults := config.DefaultConfig()
	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file; flags override its values")
	flags.String("addr", "", "Device address; skips the device selection prompt")
	flags.Int("rssi", defaults.MinRSSI, "Ignore devices at or below this RSSI (dBm)")
	flags.Duration("timeout", defaults.Timeout, "Discovery and connection timeout")
	flags.Uint32P("interval", "i", 0, "Set the sampling interval in seconds before running (0 = as fast as possible)")
	flags.String("profile", "", "YAML characteristic profile for non-stock firmware")
	flags.StringSlice("block", nil, "Device addresses to ignore during discovery")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.CountP("verbose", "v", "Increase verbosity (-v warn, -vv info, -vvv debug)")

	root.AddCommand(newScanCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newListCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		stop()
		os.Exit(1)
	}
}
