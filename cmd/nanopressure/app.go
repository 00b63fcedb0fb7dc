package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/internal/device"
	"github.com/srg/nanopressure/internal/locator"
	"github.com/srg/nanopressure/internal/pressure"
	"github.com/srg/nanopressure/internal/profile"
	"github.com/srg/nanopressure/internal/session"
	"github.com/srg/nanopressure/pkg/config"
	"golang.org/x/term"
)

// app carries what every subcommand resolves before touching the radio.
type app struct {
	cmd    *cobra.Command
	cfg    *config.Config
	logger *logrus.Logger
}

// sessionFunc runs the mode-specific part of a command on a bound session.
type sessionFunc func(ctx context.Context, s *session.Session, chars *profile.Characteristics) error

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	return &app{cmd: cmd, cfg: cfg, logger: logger}, nil
}

// progressOut returns stderr when it is a terminal and io.Discard otherwise,
// so redirected runs are not littered with carriage returns.
func (a *app) progressOut() io.Writer {
	out := a.cmd.ErrOrStderr()
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return out
	}
	return io.Discard
}

func (a *app) release() {
	if err := releaseTransport(); err != nil {
		a.logger.WithError(err).Warn("Failed to release BLE transport")
	}
}

func (a *app) newLocator() (*locator.Locator, error) {
	scanner, err := newScanner()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	loc := locator.New(scanner, func(adv device.Advertisement) device.Device {
		return newDevice(adv, a.logger)
	}, a.logger)
	loc.BlockList, _ = a.cmd.Flags().GetStringSlice("block")
	return loc, nil
}

// locate resolves --addr, or discovers candidates and asks the operator
// when more than one qualifies.
func (a *app) locate(ctx context.Context) (device.Device, error) {
	loc, err := a.newLocator()
	if err != nil {
		return nil, err
	}

	if a.cfg.Address != "" {
		progress := NewProgressPrinter(a.progressOut(), "Looking for "+a.cfg.Address, "Scanning")
		progress.Start()
		defer progress.Stop()
		return loc.ResolveByAddress(ctx, a.cfg.Address, a.cfg.Timeout)
	}

	progress := NewCountdownProgressPrinter(a.progressOut(), "Scanning for devices", "Scanning", a.cfg.Timeout)
	progress.Start()
	defer progress.Stop()

	prompt := newPromptChooser(a.cmd)
	chooser := locator.ChooserFunc(func(ctx context.Context, candidates []device.DeviceInfo) (int, error) {
		progress.Stop()
		return prompt.Choose(ctx, candidates)
	})
	return loc.DiscoverInteractive(ctx, a.cfg.Timeout, a.cfg.MinRSSI, chooser)
}

func (a *app) characteristicMap() (*profile.CharacteristicMap, error) {
	if a.cfg.Profile == "" {
		return profile.Default(), nil
	}
	return profile.Load(a.cfg.Profile)
}

// run locates the device, opens a session, binds the characteristics the
// mode needs, applies --interval and hands over to fn. The session is
// closed on every path out, including cancellation.
func (a *app) run(ctx context.Context, required []profile.Field, fn sessionFunc) error {
	defer a.release()

	m, err := a.characteristicMap()
	if err != nil {
		return err
	}

	dev, err := a.locate(ctx)
	if err != nil {
		return err
	}

	progress := NewProgressPrinter(a.progressOut(), "Connecting to "+dev.Name(), "Connecting", "Running", "Failed")
	progress.Start()
	defer progress.Stop()

	opts := &session.Options{ConnectTimeout: a.cfg.Timeout, Progress: progress.Callback()}
	_, err = session.With(ctx, dev, opts, a.logger, func(s *session.Session) (struct{}, error) {
		s.ListCharacteristics()

		fields := append([]profile.Field(nil), required...)
		if a.cfg.Interval != nil {
			fields = append(fields, profile.IntervalFields()...)
		}
		chars, err := profile.Bind(s.Connection(), m, fields...)
		if err != nil {
			return struct{}{}, err
		}

		if a.cfg.Interval != nil {
			configurator := pressure.NewIntervalConfigurator(chars.Get(profile.Interval), chars.Get(profile.PressureCounts), a.logger)
			if _, err := configurator.Apply(ctx, *a.cfg.Interval); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, fn(ctx, s, chars)
	})
	return err
}
