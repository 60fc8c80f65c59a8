// Package dermctl implements the operator CLI: fetching artifacts, running
// the loader chain offline, repairing and synthesizing archives, and
// classifying images without the HTTP server.
package dermctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dermd/internal/config"
	"dermd/internal/logging"
)

// Config holds persistent flag values.
type Config struct {
	ConfigPath string
	LogLevel   string
	JSON       bool
}

// app is the state shared by subcommands after PersistentPreRunE.
type app struct {
	flags Config
	cfg   config.Config
	log   zerolog.Logger
	out   io.Writer
}

// Run executes the CLI with args, writing results to out and logs to errOut.
func Run(args []string, out, errOut io.Writer) error {
	root := BuildRootCmd(out, errOut)
	root.SetArgs(args)
	return root.Execute()
}

// BuildRootCmd constructs the command tree.
func BuildRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, log: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "dermctl",
		Short:         "Model artifact and inference utilities for dermd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.flags.ConfigPath, "config", os.Getenv("DERMD_CONFIG"), "Config file (defaults DERMD_CONFIG)")
	root.PersistentFlags().StringVar(&a.flags.LogLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&a.flags.JSON, "json", false, "Print results as JSON")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.init(errOut)
	}

	root.AddCommand(
		newFetchCmd(a),
		newLoadCmd(a),
		newInspectCmd(a),
		newRepairCmd(a),
		newSynthCmd(a),
		newPredictCmd(a),
		newLsCmd(a),
		newCheckCmd(a),
	)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(out) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(out) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(out, true) }})
	root.AddCommand(completionCmd)
	return root
}

func (a *app) init(errOut io.Writer) error {
	if a.flags.ConfigPath != "" {
		c, err := config.Load(a.flags.ConfigPath)
		if err != nil {
			return err
		}
		a.cfg = c
	}
	config.ApplyDefaults(&a.cfg)
	log, _, err := logging.New(logging.WithConsole(errOut), logging.WithPretty(true), logging.WithLevel(a.flags.LogLevel))
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-separated rows aligned into columns.
func (a *app) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	writeRow := func(cols []string) {
		for i, c := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprintln(tw)
	}
	writeRow(header)
	for _, r := range rows {
		writeRow(r)
	}
	return tw.Flush()
}
