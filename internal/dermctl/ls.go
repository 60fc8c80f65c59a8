package dermctl

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dermd/internal/registry"
)

func newLsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List model artifacts in the models directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.ModelsDir
			if len(args) == 1 {
				dir = args[0]
			}
			arts, err := registry.LoadDir(dir)
			if err != nil {
				return err
			}
			if a.flags.JSON {
				return a.printJSON(arts)
			}
			rows := make([][]string, 0, len(arts))
			for _, x := range arts {
				rows = append(rows, []string{
					x.Name,
					x.Format,
					strconv.FormatInt(x.SizeBytes, 10),
					time.Unix(x.ModTime, 0).UTC().Format(time.RFC3339),
				})
			}
			return a.table([]string{"NAME", "FORMAT", "SIZE", "MODIFIED"}, rows)
		},
	}
}
