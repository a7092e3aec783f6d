package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/config"
	"github.com/emergingrobotics/go-hwcval/pkg/kernel"
	"github.com/emergingrobotics/go-hwcval/pkg/replay"
)

// errTestFailed is returned when a run completes but a check that causes
// test failure was hit
var errTestFailed = errors.New("test failed")

// rootOptions holds the global flags
type rootOptions struct {
	configPath   string
	outputFormat string
	brief        bool
	verbose      bool
	quiet        bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hwcval",
		Short: "Display compositor validation harness",
		Long: `hwcval validates what a hardware composer asks of the display kernel
driver. It replays recorded DRM calls and compositor log lines through the
same checks the live shim runs, and reports every failed check.

Commands:
  replay      Replay trace files and report the checks they failed
  log         Validate a compositor log against a trace's display setup
  checks      List the checks and their configured priorities
  probe       Query the DRM cards present on this machine
  version     Print version information`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: search for hwcval.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "", "report format (text, yaml, json)")
	cmd.PersistentFlags().BoolVar(&opts.brief, "brief", false, "report only failing checks")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress output except errors")

	cmd.AddCommand(
		newReplayCommand(opts),
		newLogCommand(opts),
		newChecksCommand(opts),
		newProbeCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// load reads the config and applies the report flags on top of it
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.outputFormat != "" {
		switch o.outputFormat {
		case checks.FormatText, checks.FormatYAML, checks.FormatJSON:
			cfg.Report.Format = o.outputFormat
		default:
			return nil, fmt.Errorf("%w: %q", config.ErrBadReportFormat, o.outputFormat)
		}
	}
	if o.brief {
		cfg.Report.Brief = true
	}
	return cfg, nil
}

// logger writes to w at a level chosen by --verbose and --quiet
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case o.quiet:
		level = slog.LevelError
	case o.verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// harness is everything needed to build kernels from one config
type harness struct {
	cfg    *config.Config
	checks *checks.Config
	opts   kernel.Options
}

func newHarness(cfg *config.Config, logger *slog.Logger) (*harness, error) {
	cc, err := cfg.ChecksConfig()
	if err != nil {
		return nil, err
	}
	stalls, err := cfg.Stalls()
	if err != nil {
		return nil, err
	}
	device, err := cfg.Device()
	if err != nil {
		return nil, err
	}
	hdmi, err := cfg.PreferredHDMIMode()
	if err != nil {
		return nil, err
	}

	return &harness{
		cfg:    cfg,
		checks: cc,
		opts: kernel.Options{
			Logger:            logger,
			Device:            device,
			Timeouts:          cfg.Timeouts(),
			Stalls:            stalls,
			LayerListDepth:    cfg.LayerList.Depth,
			CompareWorkers:    cfg.Kernel.CompareWorkers,
			UniversalPlanes:   cfg.Kernel.UniversalPlanes,
			SpoofDRRS:         cfg.Kernel.SpoofDRRS,
			PreferredHDMIMode: hdmi,
			StartUnplugged:    cfg.Kernel.StartUnplugged,
		},
	}, nil
}

// newKernel builds a kernel with its own ledger. Each ledger gets a copy
// of the check configuration, as kernels may change it while running.
func (h *harness) newKernel(ctx context.Context) *kernel.Kernel {
	cc := *h.checks
	opts := h.opts
	opts.Ledger = checks.NewLedger(&cc, checks.WithLogger(h.opts.Logger))
	return kernel.New(ctx, opts)
}

func (h *harness) kernelFactory() replay.KernelFactory {
	return h.newKernel
}

// report writes result in the configured format and turns a failed run
// into errTestFailed
func (h *harness) report(w io.Writer, result *checks.Result, testName string) error {
	if err := result.Write(w, h.cfg.Report.Format, h.checks, testName, h.cfg.Report.Brief); err != nil {
		return err
	}
	if result.IsGlobalFail() {
		return errTestFailed
	}
	return nil
}
