package dermctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"dermd/internal/loader"
	"dermd/internal/model"
)

func newRepairCmd(a *app) *cobra.Command {
	var (
		out    string
		labels []string
	)
	cmd := &cobra.Command{
		Use:   "repair <artifact>",
		Short: "Rebuild an archive from its architecture and raw weights and save it in the current format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if out == "" {
				out = in
			}
			net, md, notes, err := loader.Reconstruct(in)
			if err != nil {
				return fmt.Errorf("repair %s: %w", in, err)
			}
			if len(labels) > 0 {
				if len(labels) != net.OutputSize() {
					return fmt.Errorf("model produces %d classes but %d labels were given", net.OutputSize(), len(labels))
				}
				md.Labels = labels
			}
			if err := model.Save(out, net, md); err != nil {
				return err
			}
			a.log.Info().Str("in", in).Str("out", out).Strs("notes", notes).Msg("archive repaired")
			if a.flags.JSON {
				return a.printJSON(map[string]any{"in": in, "out": out, "notes": notes})
			}
			fmt.Fprintf(a.out, "wrote %s\n", out)
			for _, n := range notes {
				fmt.Fprintf(a.out, "  %s\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to rewriting the input)")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "Labels to store in the repaired archive")
	return cmd
}
