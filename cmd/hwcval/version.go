package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/emergingrobotics/go-hwcval/pkg/checks"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "hwcval version %s\n", Version)
	fmt.Fprintf(w, "  Build time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Go version: %s\n", GoVersion)
	fmt.Fprintf(w, "  Runtime:    %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  Checks:     %d\n", checks.NumChecks)
}
