package artifact

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// ReleaseResolver turns a release reference into a downloadable asset URL.
type ReleaseResolver interface {
	ResolveRelease(ctx context.Context, ref ReleaseRef) (string, error)
}

// GitHubReleases resolves release assets through the GitHub REST API.
type GitHubReleases struct {
	client *github.Client
}

// NewGitHubReleases builds a resolver. An empty token uses anonymous access.
func NewGitHubReleases(token string) *GitHubReleases {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return &GitHubReleases{client: github.NewClient(hc)}
}

// NewGitHubReleasesWithClient wraps an existing client, e.g. one pointed at a
// test server or GitHub Enterprise.
func NewGitHubReleasesWithClient(c *github.Client) *GitHubReleases {
	return &GitHubReleases{client: c}
}

func (g *GitHubReleases) ResolveRelease(ctx context.Context, ref ReleaseRef) (string, error) {
	var (
		rel  *github.RepositoryRelease
		resp *github.Response
		err  error
	)
	if ref.Tag == "" || ref.Tag == "latest" {
		rel, resp, err = g.client.Repositories.GetLatestRelease(ctx, ref.Owner, ref.Repo)
	} else {
		rel, resp, err = g.client.Repositories.GetReleaseByTag(ctx, ref.Owner, ref.Repo, ref.Tag)
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("release %s not found", ref)
		}
		return "", fmt.Errorf("get release %s: %w", ref, err)
	}
	for _, a := range rel.Assets {
		if a.GetName() == ref.Asset {
			if u := a.GetBrowserDownloadURL(); u != "" {
				return u, nil
			}
		}
	}
	return "", fmt.Errorf("release %s (%s) has no asset %q", ref, rel.GetTagName(), ref.Asset)
}
