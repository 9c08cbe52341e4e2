// Package cmd wires the runner's command-line surface, structured exactly
// like the teacher's pkg/cmd/controller package: a root command with a
// persistent --config flag and subcommands dispatching into the rest of
// the module (spec.md §6 "CLI").
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func ExitWithErr(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// NewCommand builds the root "askui-runner" command.
func NewCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "askui-runner",
		Short: "Workload runner: queue-polling supervisor, job executor, and file sync",
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a .json/.yaml/.yml config file, or an inline JSON document")
	_ = cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(
		newStartCommand(&cfgFile),
		newAgentCommand(&cfgFile),
	)

	return cmd
}
