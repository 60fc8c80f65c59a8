package dermctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"dermd/internal/inference"
	"dermd/internal/model"
)

func defaultLabels() []string { return append([]string(nil), inference.DefaultLabels...) }

func newSynthCmd(a *app) *cobra.Command {
	var (
		out      string
		labels   []string
		seed     int64
		input    []int
		filters  int
		backbone string
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a reference model archive with a freshly initialized head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			if len(labels) == 0 {
				labels = a.cfg.Labels
			}
			if len(labels) == 0 {
				labels = defaultLabels()
			}
			if len(input) == 0 {
				input = a.cfg.Loader.InputShape
			}
			if len(input) != 3 {
				return fmt.Errorf("--input must be H,W,C")
			}
			opts := model.SynthOptions{
				Input:   model.Shape{H: input[0], W: input[1], C: input[2]},
				Classes: len(labels),
				Seed:    seed,
				Filters: filters,
			}
			if backbone != "" {
				lr, err := model.LoadArchive(backbone, model.DecodeOptions{Relaxed: true})
				if err != nil {
					return fmt.Errorf("load backbone: %w", err)
				}
				opts.Backbone = lr.Network
			}
			net, err := model.Synthesize(opts)
			if err != nil {
				return err
			}
			if err := model.Save(out, net, model.Metadata{Labels: labels, Producer: "dermctl synth"}); err != nil {
				return err
			}
			if a.flags.JSON {
				return a.printJSON(map[string]any{"out": out, "input": net.InputShape(), "labels": labels, "params": net.ParamCount()})
			}
			fmt.Fprintf(a.out, "wrote %s (input %s, %d classes, %d params)\n", out, net.InputShape(), len(labels), net.ParamCount())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output archive path")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "Class labels (defaults to config, then the built-in set)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Initialization seed")
	cmd.Flags().IntSliceVar(&input, "input", nil, "Input shape H,W,C (defaults to loader.input_shape)")
	cmd.Flags().IntVar(&filters, "filters", 0, "Backbone convolution width (default 16)")
	cmd.Flags().StringVar(&backbone, "backbone", "", "Archive whose feature layers are reused")
	return cmd
}
