package dermctl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dermd/internal/artifact"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		source  string
		dest    string
		sha     string
		timeout time.Duration
		token   string
	)
	cmd := &cobra.Command{
		Use:   "fetch [identifier]",
		Short: "Download a model artifact unless it is already present",
		Example: "  dermctl fetch https://drive.google.com/file/d/<id>/view --dest models/skin.dmz\n" +
			"  dermctl fetch owner/repo@latest/skin.dmz",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			if len(args) == 1 {
				c.Artifact.ID = args[0]
				c.Artifact.Source, c.Artifact.Dest, c.Artifact.SHA256 = "", "", ""
			}
			if source != "" {
				c.Artifact.Source = source
			}
			if dest != "" {
				c.Artifact.Dest = dest
			}
			if sha != "" {
				c.Artifact.SHA256 = sha
			}
			if timeout > 0 {
				c.Artifact.Timeout = timeout.String()
			}
			if token != "" {
				c.Artifact.GitHubToken = token
			}
			if c.Artifact.ID == "" {
				return fmt.Errorf("fetch requires an identifier (argument or artifact.id in config)")
			}
			desc, err := c.Descriptor()
			if err != nil {
				return err
			}
			plan, err := artifact.Resolve(desc)
			if err != nil {
				return err
			}
			if p, _ := artifact.Locate(plan.Destination); p == artifact.Present {
				res := artifact.FetchResult{Succeeded: true, AlreadyPresent: true, Destination: plan.Destination, ContentKind: artifact.Binary}
				return a.printFetch(res)
			}
			res, err := c.NewFetcher(a.log).Fetch(cmd.Context(), plan)
			if err != nil {
				_ = a.printFetch(res)
				return err
			}
			return a.printFetch(res)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source kind; inferred from the identifier when empty")
	cmd.Flags().StringVar(&dest, "dest", "", "Destination path (defaults to <models-dir>/<basename>)")
	cmd.Flags().StringVar(&sha, "sha256", "", "Expected SHA-256 of the artifact")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Download timeout (default 120s)")
	cmd.Flags().StringVar(&token, "github-token", "", "GitHub token for release lookups")
	return cmd
}

func (a *app) printFetch(res artifact.FetchResult) error {
	if a.flags.JSON {
		return a.printJSON(res)
	}
	return a.table(
		[]string{"DEST", "SUCCEEDED", "PRESENT", "BYTES", "KIND", "SHA256"},
		[][]string{{
			res.Destination,
			strconv.FormatBool(res.Succeeded),
			strconv.FormatBool(res.AlreadyPresent),
			strconv.FormatInt(res.BytesWritten, 10),
			string(res.ContentKind),
			res.SHA256,
		}},
	)
}
