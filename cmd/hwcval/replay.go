package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
	"github.com/emergingrobotics/go-hwcval/pkg/logparse"
	"github.com/emergingrobotics/go-hwcval/pkg/replay"
)

func newReplayCommand(opts *rootOptions) *cobra.Command {
	var testName string

	cmd := &cobra.Command{
		Use:   "replay <trace>...",
		Short: "Replay trace files and report the checks they failed",
		Long: `Replay each trace against its own validation kernel and report the
merged results. Traces run concurrently; the first trace that can not be
applied stops the rest. Use "-" to read a single trace from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())
			h, err := newHarness(cfg, logger)
			if err != nil {
				return err
			}
			if testName == "" {
				testName = defaultTestName(args)
			}

			var result *checks.Result
			if len(args) == 1 && args[0] == "-" {
				k := h.newKernel(cmd.Context())
				runErr := replay.NewPlayer(k, logger).Run(cmd.Context(), cmd.InOrStdin())
				result, err = k.Shutdown()
				if runErr != nil {
					return runErr
				}
			} else {
				result, err = replay.RunAll(cmd.Context(), args, h.kernelFactory(), logger)
			}
			if err != nil {
				return err
			}
			return h.report(cmd.OutOrStdout(), result, testName)
		},
	}

	cmd.Flags().StringVarP(&testName, "name", "n", "", "test name shown in the report (default: trace names)")
	return cmd
}

func newLogCommand(opts *rootOptions) *cobra.Command {
	var (
		setup    string
		testName string
	)

	cmd := &cobra.Command{
		Use:   "log [file]",
		Short: "Validate a compositor log against a trace's display setup",
		Long: `Feed the lines of a compositor log through the validation kernel. Page
flips, releases, ESD events and the rest are matched from the log text.
A setup trace, replayed first, tells the kernel about CRTCs, planes and
buffers. With no file the log is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())
			h, err := newHarness(cfg, logger)
			if err != nil {
				return err
			}

			src := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening log: %w", err)
				}
				defer f.Close()
				src = f
				if testName == "" {
					testName = defaultTestName(args)
				}
			}
			if testName == "" {
				testName = "log"
			}

			k := h.newKernel(cmd.Context())
			if setup != "" {
				f, err := os.Open(setup)
				if err != nil {
					_, _ = k.Shutdown()
					return fmt.Errorf("opening setup trace: %w", err)
				}
				err = replay.NewPlayer(k, logger).Run(cmd.Context(), f)
				f.Close()
				if err != nil {
					_, _ = k.Shutdown()
					return fmt.Errorf("setup trace: %w", err)
				}
			}

			reader := logparse.NewReader(logparse.NewParser(logger))
			runErr := reader.Run(cmd.Context(), src, func(ev logparse.Event) error {
				k.HandleEvent(ev)
				return nil
			})
			result, err := k.Shutdown()
			if runErr != nil {
				return runErr
			}
			if err != nil {
				return err
			}
			stats := reader.Stats()
			logger.Info("log validated", "lines", stats.Lines, "matched", stats.Matched)
			return h.report(cmd.OutOrStdout(), result, testName)
		},
	}

	cmd.Flags().StringVarP(&setup, "setup", "s", "", "trace replayed before the log")
	cmd.Flags().StringVarP(&testName, "name", "n", "", "test name shown in the report")
	return cmd
}

// defaultTestName joins the base names of the inputs, without extensions
func defaultTestName(paths []string) string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "-" {
			names = append(names, "stdin")
			continue
		}
		base := filepath.Base(p)
		names = append(names, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return strings.Join(names, ",")
}
