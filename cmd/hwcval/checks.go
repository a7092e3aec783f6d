package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

// checkInfo is one row of the checks listing
type checkInfo struct {
	Name           string `yaml:"name" json:"name"`
	Component      string `yaml:"component" json:"component"`
	Priority       string `yaml:"priority" json:"priority"`
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	CausesTestFail bool   `yaml:"causes_test_fail" json:"causes_test_fail"`
	Description    string `yaml:"description" json:"description"`
}

func newChecksCommand(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "List the checks and their configured priorities",
		Long: `List every check with the priority and enable state it has after the
config file's overrides are applied. Disabled checks are only listed
with --all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cc, err := cfg.ChecksConfig()
			if err != nil {
				return err
			}
			return writeChecks(cmd.OutOrStdout(), cfg.Report.Format, listChecks(cc, all))
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "include disabled checks")
	return cmd
}

func listChecks(cc *checks.Config, all bool) []checkInfo {
	var out []checkInfo
	for c := checks.Check(0); c < checks.NumChecks; c++ {
		enabled := cc.IsEnabled(c)
		if !enabled && !all {
			continue
		}
		out = append(out, checkInfo{
			Name:           c.String(),
			Component:      c.Component().String(),
			Priority:       cc.Priority(c).String(),
			Enabled:        enabled,
			CausesTestFail: cc.Check(c).CausesTestFail,
			Description:    c.Description(),
		})
	}
	return out
}

func writeChecks(w io.Writer, format string, list []checkInfo) error {
	switch format {
	case checks.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case checks.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOMPONENT\tPRIORITY\tENABLED\tDESCRIPTION")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.Name, c.Component, c.Priority, c.Enabled, c.Description)
	}
	return tw.Flush()
}
