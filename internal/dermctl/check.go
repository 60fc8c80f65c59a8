package dermctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dermd/pkg/types"
)

type checkResult struct {
	Status  types.StatusResponse   `json:"status"`
	Predict *types.PredictResponse `json:"predict,omitempty"`
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		base    string
		wait    time.Duration
		imgPath string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Wait for a running dermd to become ready and report its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base = strings.TrimRight(base, "/")
			client := &http.Client{Timeout: 10 * time.Second}
			if err := waitHTTP(cmd.Context(), client, base+"/readyz", http.StatusOK, wait); err != nil {
				return err
			}
			var res checkResult
			if err := getJSON(cmd.Context(), client, base+"/status", &res.Status); err != nil {
				return err
			}
			if imgPath != "" {
				pr, err := postImage(cmd.Context(), client, base+"/predict", imgPath)
				if err != nil {
					return err
				}
				res.Predict = &pr
			}
			if a.flags.JSON {
				return a.printJSON(res)
			}
			st := res.Status
			fmt.Fprintf(a.out, "state: %s degraded: %t predictions: %d\n", st.State, st.Degraded, st.Predictions)
			if st.Model != nil {
				fmt.Fprintf(a.out, "model: %s (%s via %s)\n", st.Model.Path, st.Model.Format, st.Model.Strategy)
			}
			if res.Predict != nil {
				fmt.Fprintf(a.out, "predict: %s %.4f\n", res.Predict.Disease, res.Predict.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "url", "http://localhost:8080", "Base URL of the dermd server")
	cmd.Flags().DurationVar(&wait, "wait", 60*time.Second, "How long to wait for /readyz")
	cmd.Flags().StringVar(&imgPath, "image", "", "Also classify this image through /predict")
	return cmd
}

// waitHTTP polls url until it answers with want or timeout elapses.
func waitHTTP(ctx context.Context, client *http.Client, url string, want int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	last := "no response"
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == want {
				return nil
			}
			last = resp.Status
		}
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s to return %d (last: %s)", url, want, last)
		}
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func postImage(ctx context.Context, client *http.Client, url, path string) (types.PredictResponse, error) {
	var pr types.PredictResponse
	img, err := os.ReadFile(path)
	if err != nil {
		return pr, err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return pr, err
	}
	if _, err := fw.Write(img); err != nil {
		return pr, err
	}
	if err := mw.Close(); err != nil {
		return pr, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return pr, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := client.Do(req)
	if err != nil {
		return pr, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		var e types.ErrorResponse
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return pr, fmt.Errorf("predict: %d %s", resp.StatusCode, e.Error)
		}
		return pr, fmt.Errorf("predict: %s", resp.Status)
	}
	return pr, json.Unmarshal(b, &pr)
}
