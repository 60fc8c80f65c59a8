package dermctl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"dermd/internal/inference"
	"dermd/pkg/types"
)

func newPredictCmd(a *app) *cobra.Command {
	var f loadFlags
	cmd := &cobra.Command{
		Use:   "predict <artifact> <image>...",
		Short: "Classify images with a model artifact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.runChain(cmd.Context(), cmd, f, args[0])
			if err != nil {
				return err
			}
			defer res.Handle.Close()
			labels := f.labels
			if len(labels) == 0 {
				labels = a.cfg.Labels
			}
			if len(labels) == 0 {
				labels = res.Labels
			}
			if len(labels) == 0 {
				labels = defaultLabels()
			}
			clf, err := inference.NewClassifier(res.Handle, labels)
			if err != nil {
				return err
			}

			out := make([]types.PredictResponse, 0, len(args)-1)
			for _, p := range args[1:] {
				fh, err := os.Open(p)
				if err != nil {
					return err
				}
				pred, err := clf.ClassifyImage(cmd.Context(), fh)
				fh.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				r := types.PredictResponse{
					Disease:       pred.Label,
					Confidence:    pred.Confidence,
					Filename:      filepath.Base(p),
					Probabilities: pred.Probabilities,
					Degraded:      res.Degraded,
				}
				if pred.Info != nil {
					r.Symptoms, r.Treatment = pred.Info.Symptoms, pred.Info.Treatment
				}
				out = append(out, r)
			}
			if a.flags.JSON {
				return a.printJSON(out)
			}
			rows := make([][]string, 0, len(out))
			for _, r := range out {
				rows = append(rows, []string{r.Filename, r.Disease, strconv.FormatFloat(r.Confidence, 'f', 4, 64), topK(r.Probabilities, 3)})
			}
			if res.Degraded {
				fmt.Fprintln(a.out, "warning: synthesized model, predictions carry no training signal")
			}
			return a.table([]string{"FILE", "DISEASE", "CONFIDENCE", "TOP"}, rows)
		},
	}
	f.register(cmd)
	return cmd
}

// topK formats the k most probable labels.
func topK(probs map[string]float64, k int) string {
	type kv struct {
		k string
		v float64
	}
	all := make([]kv, 0, len(probs))
	for l, p := range probs {
		all = append(all, kv{l, p})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})
	if len(all) > k {
		all = all[:k]
	}
	s := ""
	for i, e := range all {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%.3f", e.k, e.v)
	}
	return s
}
