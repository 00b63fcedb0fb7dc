package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/pkg/config"
)

// loadConfig layers the effective configuration: defaults, then the --config
// file, then every flag set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("addr") {
		cfg.Address, _ = flags.GetString("addr")
	}
	if flags.Changed("rssi") {
		cfg.MinRSSI, _ = flags.GetInt("rssi")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("interval") {
		v, _ := flags.GetUint32("interval")
		cfg.Interval = &v
	}
	if flags.Changed("profile") {
		cfg.Profile, _ = flags.GetString("profile")
	}

	// scan
	if flags.Changed("newline") {
		cfg.Newline, _ = flags.GetBool("newline")
	}
	if flags.Changed("color") {
		cfg.Color, _ = flags.GetBool("color")
	}

	// download
	if flags.Changed("filename") {
		cfg.Filename, _ = flags.GetString("filename")
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite, _ = flags.GetBool("overwrite")
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
