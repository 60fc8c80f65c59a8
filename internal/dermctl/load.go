package dermctl

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"dermd/internal/loader"
)

type loadFlags struct {
	labels     []string
	allowSynth bool
	persist    bool
	seed       int64
}

func (f *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.labels, "labels", nil, "Class labels in model output order")
	cmd.Flags().BoolVar(&f.allowSynth, "allow-synthesized", false, "Fall back to a synthesized (degraded) model")
	cmd.Flags().BoolVar(&f.persist, "persist", false, "Let split reconstruction rewrite the artifact")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Seed for the synthesized fallback")
}

// runChain loads path through the default strategies configured from the
// config file and flags.
func (a *app) runChain(ctx context.Context, cmd *cobra.Command, f loadFlags, path string) (loader.Result, []loader.Attempt, error) {
	c := a.cfg
	if len(f.labels) > 0 {
		c.Labels = f.labels
	}
	o := c.LoaderOptions(a.log)
	o.PersistRepaired = f.persist
	if cmd.Flags().Changed("allow-synthesized") {
		o.AllowSynthesized = f.allowSynth
	}
	if cmd.Flags().Changed("seed") {
		o.Synth.Seed = f.seed
	}
	if len(o.Synth.Labels) == 0 {
		o.Synth.Labels = defaultLabels()
	}
	chain := loader.NewChain(a.log, loader.DefaultStrategies(o)...)
	return chain.Run(ctx, path)
}

func newLoadCmd(a *app) *cobra.Command {
	var f loadFlags
	cmd := &cobra.Command{
		Use:   "load <artifact>",
		Short: "Run the loader chain and print every attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, attempts, err := a.runChain(cmd.Context(), cmd, f, args[0])
			if res.Handle != nil {
				defer res.Handle.Close()
			}
			if a.flags.JSON {
				if perr := a.printJSON(map[string]any{"attempts": attempts, "degraded": res.Degraded, "format": res.Format}); perr != nil {
					return perr
				}
				return err
			}
			rows := make([][]string, 0, len(attempts))
			for _, at := range attempts {
				detail := at.Reason
				if at.Outcome == loader.Success {
					detail = strings.Join(at.Notes, "; ")
				}
				rows = append(rows, []string{at.Strategy, string(at.Outcome), at.Duration.String(), detail})
			}
			if perr := a.table([]string{"STRATEGY", "OUTCOME", "DURATION", "DETAIL"}, rows); perr != nil {
				return perr
			}
			return err
		},
	}
	f.register(cmd)
	return cmd
}
