package dermctl

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dermd/internal/model"
)

type inspectResult struct {
	Path     string               `json:"path"`
	Format   model.Format         `json:"format"`
	Metadata *model.Metadata      `json:"metadata,omitempty"`
	Input    model.Shape          `json:"input"`
	Outputs  int                  `json:"outputs"`
	Params   int                  `json:"params"`
	Layers   []model.LayerSummary `json:"layers,omitempty"`
	Notes    []string             `json:"notes,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print the format, input and output shapes and layers of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := model.DetectFormat(path)
			if err != nil {
				return err
			}
			r := inspectResult{Path: path, Format: f}
			switch f {
			case model.FormatArchive:
				lr, err := model.LoadArchive(path, model.DecodeOptions{Relaxed: true})
				if err != nil {
					return fmt.Errorf("inspect %s: %w", path, err)
				}
				md := lr.Metadata
				r.Metadata = &md
				r.Input = lr.Network.InputShape()
				r.Outputs = lr.Network.OutputSize()
				r.Params = lr.Network.ParamCount()
				r.Layers = lr.Network.Summary()
				r.Notes = lr.Notes
			case model.FormatTFLite:
				h, err := model.OpenTFLite(path, 1)
				if err != nil {
					return err
				}
				defer h.Close()
				r.Input = h.InputShape()
				r.Outputs = h.OutputSize()
			default:
				return fmt.Errorf("inspect %s: unsupported format %s", path, f)
			}
			if a.flags.JSON {
				return a.printJSON(r)
			}
			fmt.Fprintf(a.out, "path:    %s\nformat:  %s\ninput:   %s\noutputs: %d\nparams:  %d\n", r.Path, r.Format, r.Input, r.Outputs, r.Params)
			if r.Metadata != nil && r.Metadata.FormatVersion != "" {
				fmt.Fprintf(a.out, "version: %s %s\n", r.Metadata.Format, r.Metadata.FormatVersion)
			}
			for _, n := range r.Notes {
				fmt.Fprintf(a.out, "note:    %s\n", n)
			}
			if len(r.Layers) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(r.Layers))
			for _, l := range r.Layers {
				rows = append(rows, []string{l.Name, l.Class, l.Output.String(), strconv.Itoa(l.Params)})
			}
			fmt.Fprintln(a.out)
			return a.table([]string{"LAYER", "CLASS", "OUTPUT", "PARAMS"}, rows)
		},
	}
}
