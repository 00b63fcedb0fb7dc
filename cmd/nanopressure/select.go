package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/srg/nanopressure/internal/device"
	"golang.org/x/term"
)

// selectPageSize is how many candidates the menu shows before scrolling.
const selectPageSize = 10

// promptChooser lets the operator pick a device from an arrow-key menu.
type promptChooser struct {
	interactive func() bool
	run         func(candidates []device.DeviceInfo) (int, error)
}

func newPromptChooser(cmd *cobra.Command) *promptChooser {
	in := cmd.InOrStdin()
	out := cmd.ErrOrStderr()
	return &promptChooser{
		interactive: func() bool {
			f, ok := in.(*os.File)
			return ok && term.IsTerminal(int(f.Fd()))
		},
		run: func(candidates []device.DeviceInfo) (int, error) {
			idx, _, err := newDeviceSelect(candidates, in, out).Run()
			return idx, selectError(err)
		},
	}
}

// Choose shows the menu and returns the selected index. It returns once ctx
// is cancelled even while the menu waits for input.
func (p *promptChooser) Choose(ctx context.Context, candidates []device.DeviceInfo) (int, error) {
	if !p.interactive() {
		return 0, fmt.Errorf("%d devices found but stdin is not a terminal, pass --addr", len(candidates))
	}

	type answer struct {
		idx int
		err error
	}
	answers := make(chan answer, 1)
	go func() {
		idx, err := p.run(candidates)
		answers <- answer{idx: idx, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case a := <-answers:
		return a.idx, a.err
	}
}

// newDeviceSelect builds the menu, one line per candidate.
func newDeviceSelect(candidates []device.DeviceInfo, in io.Reader, out io.Writer) *promptui.Select {
	items := make([]string, len(candidates))
	for i, d := range candidates {
		items[i] = deviceLabel(d)
	}
	return &promptui.Select{
		Label:  "Select device",
		Items:  items,
		Size:   min(len(items), selectPageSize),
		Stdin:  io.NopCloser(in),
		Stdout: nopWriteCloser{out},
	}
}

func deviceLabel(d device.DeviceInfo) string {
	return fmt.Sprintf("%-20s %s %4d dBm", d.Name(), d.Address(), d.RSSI())
}

// selectError maps menu errors: Ctrl+C inside the menu is an interrupt like
// any other and ends the run silently.
func selectError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, promptui.ErrInterrupt):
		return context.Canceled
	default:
		return fmt.Errorf("no device selected: %w", err)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// printDevices writes a device table.
func printDevices(out io.Writer, devices []device.DeviceInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", d.Name(), d.Address(), d.RSSI())
	}
	_ = w.Flush()
}
