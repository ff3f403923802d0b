// Package release looks up published Keploy releases on GitHub.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/platform"
)

const (
	// DefaultOwner and DefaultRepo name the recorder's GitHub repository.
	DefaultOwner = "keploy"
	DefaultRepo  = "keploy"

	defaultAPIBase      = "https://api.github.com"
	defaultDownloadBase = "https://github.com"
	defaultTimeout      = 30 * time.Second

	// ChecksumsAsset is the checksum file published with every release.
	ChecksumsAsset = "checksums.txt"
)

// Release is the subset of a GitHub release response heykeploy uses.
type Release struct {
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	HTMLURL    string  `json:"html_url"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// FindAsset returns the asset called name.
func (r *Release) FindAsset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// Client queries the GitHub releases API.
type Client struct {
	owner        string
	repo         string
	token        string // optional, raises the API rate limit
	apiBase      string
	downloadBase string
	client       *http.Client
}

// NewClient returns a client for keploy/keploy. A nil httpClient gets a
// default one with a 30s timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		owner:        DefaultOwner,
		repo:         DefaultRepo,
		apiBase:      defaultAPIBase,
		downloadBase: defaultDownloadBase,
		client:       httpClient,
	}
}

// WithToken sets an optional GitHub token for authentication
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithBaseURLs points the client at another API and download host.
func (c *Client) WithBaseURLs(apiBase, downloadBase string) *Client {
	c.apiBase = strings.TrimRight(apiBase, "/")
	c.downloadBase = strings.TrimRight(downloadBase, "/")
	return c
}

// Latest returns the tag name of the latest published release.
func (c *Client) Latest(ctx context.Context) (string, error) {
	rel, err := c.LatestRelease(ctx)
	if err != nil {
		return "", err
	}
	return rel.TagName, nil
}

// LatestRelease fetches the latest release from the GitHub API.
func (c *Client) LatestRelease(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiBase, c.owner, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindInvalidInput, "create request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindNetwork, "fetch latest release", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, outcome.Errorf(outcome.KindNetwork, "GitHub API returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, outcome.Wrap(outcome.KindNetwork, "decode release", err)
	}
	if rel.TagName == "" {
		return nil, outcome.Errorf(outcome.KindNetwork, "latest release has no tag")
	}
	return &rel, nil
}

// AssetName returns the release archive name for a platform, e.g.
// keploy_linux_amd64.tar.gz or keploy_darwin_all.tar.gz.
func AssetName(info platform.Info) string {
	return fmt.Sprintf("keploy_%s.tar.gz", info.AssetSuffix())
}

// AssetURL returns the "latest" download URL of the archive for info.
func (c *Client) AssetURL(info platform.Info) string {
	return c.latestDownload(AssetName(info))
}

// ChecksumURL returns the "latest" download URL of the checksum file.
func (c *Client) ChecksumURL() string {
	return c.latestDownload(ChecksumsAsset)
}

func (c *Client) latestDownload(name string) string {
	return fmt.Sprintf("%s/%s/%s/releases/latest/download/%s", c.downloadBase, c.owner, c.repo, name)
}
