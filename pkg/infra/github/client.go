package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shurcooL/githubv4"

	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

const (
	DefaultBaseURL   = "https://api.github.com/"
	DefaultUploadURL = "https://uploads.github.com/"
)

// config holds endpoint and transport settings of a Client
type config struct {
	baseURL    string
	uploadURL  string
	graphqlURL string
	httpClient *http.Client
}

// Option is a functional option for Client
type Option func(*config)

// WithBaseURL sets the REST API endpoint, e.g. "https://github.example.com/api/v3/"
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithUploadURL sets the endpoint used when a release carries no upload_url
func WithUploadURL(u string) Option {
	return func(c *config) {
		c.uploadURL = u
	}
}

// WithGraphQLURL sets the GraphQL endpoint. Defaults to "<base URL>graphql".
func WithGraphQLURL(u string) Option {
	return func(c *config) {
		c.graphqlURL = u
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		baseURL:    DefaultBaseURL,
		uploadURL:  DefaultUploadURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Client is the release directory of one GitHub repository
type Client struct {
	owner string
	repo  string
	gh    *github.Client
	gql   *githubv4.Client
}

// NewClient creates a Client authenticated with a token
func NewClient(owner, repo, token string, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)

	gh := github.NewClient(cfg.httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}

	return newClient(owner, repo, gh, cfg)
}

// NewAppClient creates a Client authenticated as a GitHub App installation
func NewAppClient(owner, repo string, appID, installationID int64, privateKey []byte, opts ...Option) (*Client, error) {
	cfg := newConfig(opts)

	base := cfg.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	itr, err := ghinstallation.New(base, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport",
			goerr.V("app_id", appID),
			goerr.V("installation_id", installationID),
			goerr.T(types.ErrTagFatal))
	}
	// Installation tokens are minted against the same API host
	itr.BaseURL = strings.TrimSuffix(cfg.baseURL, "/")

	gh := github.NewClient(&http.Client{Transport: itr, Timeout: cfg.httpClient.Timeout})
	return newClient(owner, repo, gh, cfg)
}

func newClient(owner, repo string, gh *github.Client, cfg *config) (*Client, error) {
	if owner == "" || repo == "" {
		return nil, goerr.New("owner and repo are required",
			goerr.V("owner", owner),
			goerr.V("repo", repo),
			goerr.T(types.ErrTagFatal))
	}

	baseURL, err := parseEndpoint(cfg.baseURL)
	if err != nil {
		return nil, err
	}
	uploadURL, err := parseEndpoint(cfg.uploadURL)
	if err != nil {
		return nil, err
	}
	gh.BaseURL = baseURL
	gh.UploadURL = uploadURL

	graphqlURL := cfg.graphqlURL
	if graphqlURL == "" {
		graphqlURL = baseURL.String() + "graphql"
	}

	return &Client{
		owner: owner,
		repo:  repo,
		gh:    gh,
		gql:   githubv4.NewEnterpriseClient(graphqlURL, gh.Client()),
	}, nil
}

// parseEndpoint parses an API endpoint and makes sure it ends with a slash
func parseEndpoint(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid GitHub endpoint URL",
			goerr.V("url", raw),
			goerr.T(types.ErrTagFatal))
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, goerr.New("GitHub endpoint URL must be absolute",
			goerr.V("url", raw),
			goerr.T(types.ErrTagFatal))
	}
	return u, nil
}

// FindReleaseByTag returns the release for tag, or nil if the tag has none.
// Draft releases are not served by the tag endpoint, so a miss falls back to
// the full release listing.
func (c *Client) FindReleaseByTag(ctx context.Context, tag string) (*model.Release, error) {
	release, resp, err := c.gh.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
	if err != nil {
		if isNotFound(resp) {
			return c.findReleaseInList(ctx, tag)
		}
		return nil, wrapResponseError(err, resp, "failed to get release by tag", goerr.V("tag", tag))
	}

	return toRelease(release), nil
}

func (c *Client) findReleaseInList(ctx context.Context, tag string) (*model.Release, error) {
	opts := &github.ListOptions{PerPage: 100}

	for {
		releases, resp, err := c.gh.Repositories.ListReleases(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, wrapResponseError(err, resp, "failed to list releases", goerr.V("tag", tag))
		}
		for _, r := range releases {
			if r.GetTagName() == tag {
				return toRelease(r), nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateRelease creates a release. A release that already exists for the tag
// is reported as a conflict.
func (c *Client) CreateRelease(ctx context.Context, target *model.ReleaseTarget) (*model.Release, error) {
	req := &github.RepositoryRelease{
		TagName:    github.Ptr(target.TagName),
		Body:       github.Ptr(target.Body),
		Draft:      github.Ptr(target.Draft),
		Prerelease: github.Ptr(target.Prerelease),
	}
	if target.TargetCommitish != "" {
		req.TargetCommitish = github.Ptr(target.TargetCommitish)
	}
	if target.Name != "" {
		req.Name = github.Ptr(target.Name)
	}

	release, resp, err := c.gh.Repositories.CreateRelease(ctx, c.owner, c.repo, req)
	if err != nil {
		if isAlreadyExists(err) {
			return nil, goerr.Wrap(err, "release already exists",
				goerr.V("tag", target.TagName),
				goerr.T(types.ErrTagConflict))
		}
		return nil, wrapResponseError(err, resp, "failed to create release", goerr.V("tag", target.TagName))
	}

	return toRelease(release), nil
}

// ListAssets returns every asset of a release
func (c *Client) ListAssets(ctx context.Context, releaseID int64) ([]*model.Asset, error) {
	var assets []*model.Asset
	opts := &github.ListOptions{PerPage: 100}

	for {
		page, resp, err := c.gh.Repositories.ListReleaseAssets(ctx, c.owner, c.repo, releaseID, opts)
		if err != nil {
			return nil, wrapResponseError(err, resp, "failed to list release assets",
				goerr.V("release_id", releaseID))
		}
		for _, a := range page {
			assets = append(assets, toAsset(a))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return assets, nil
}

// UploadAsset streams size bytes from r as a new asset of release
func (c *Client) UploadAsset(ctx context.Context, release *model.Release, name string, r io.Reader, size int64) (*model.Asset, error) {
	req, err := c.gh.NewUploadRequest(c.uploadEndpoint(release, name), r, size, "application/octet-stream")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build upload request",
			goerr.V("asset", name),
			goerr.T(types.ErrTagFatal))
	}

	asset := new(github.ReleaseAsset)
	resp, err := c.gh.Do(ctx, req, asset)
	if err != nil {
		return nil, wrapResponseError(err, resp, "failed to upload release asset",
			goerr.V("asset", name),
			goerr.V("release_id", release.ID))
	}

	return toAsset(asset), nil
}

// uploadEndpoint builds the upload URL. The release's upload_url is preferred
// because enterprise servers serve uploads from a different path.
func (c *Client) uploadEndpoint(release *model.Release, name string) string {
	endpoint := fmt.Sprintf("repos/%s/%s/releases/%d/assets", c.owner, c.repo, release.ID)
	if release.UploadURL != "" {
		// ".../releases/1/assets{?name,label}"
		endpoint, _, _ = strings.Cut(release.UploadURL, "{")
	}
	return endpoint + "?name=" + url.QueryEscape(name)
}

// DeleteAsset deletes an asset. An asset that no longer exists counts as deleted.
func (c *Client) DeleteAsset(ctx context.Context, assetID int64) error {
	resp, err := c.gh.Repositories.DeleteReleaseAsset(ctx, c.owner, c.repo, assetID)
	if err != nil {
		if isNotFound(resp) {
			return nil
		}
		return wrapResponseError(err, resp, "failed to delete release asset",
			goerr.V("asset_id", assetID))
	}
	return nil
}

// getAsset fetches a single asset by its REST id, or nil if it does not exist
func (c *Client) getAsset(ctx context.Context, assetID int64) (*model.Asset, error) {
	asset, resp, err := c.gh.Repositories.GetReleaseAsset(ctx, c.owner, c.repo, assetID)
	if err != nil {
		if isNotFound(resp) {
			return nil, nil
		}
		return nil, wrapResponseError(err, resp, "failed to get release asset",
			goerr.V("asset_id", assetID))
	}
	return toAsset(asset), nil
}

func toRelease(r *github.RepositoryRelease) *model.Release {
	return &model.Release{
		ID:         r.GetID(),
		TagName:    r.GetTagName(),
		Name:       r.GetName(),
		Body:       r.GetBody(),
		Draft:      r.GetDraft(),
		Prerelease: r.GetPrerelease(),
		UploadURL:  r.GetUploadURL(),
		HTMLURL:    r.GetHTMLURL(),
	}
}

func toAsset(a *github.ReleaseAsset) *model.Asset {
	return &model.Asset{
		ID:          a.GetID(),
		Name:        a.GetName(),
		Size:        int64(a.GetSize()),
		State:       model.AssetState(a.GetState()),
		DownloadURL: a.GetBrowserDownloadURL(),
	}
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

// isAlreadyExists detects the 422 returned when the tag already has a release
func isAlreadyExists(err error) bool {
	var errResp *github.ErrorResponse
	if !errors.As(err, &errResp) || len(errResp.Errors) == 0 {
		return false
	}
	first := errResp.Errors[0]
	return first.Resource == "Release" && first.Code == "already_exists"
}

// wrapResponseError wraps a failed API call. Every unexpected response is
// treated as transient: the retry budget bounds how often it is repeated.
func wrapResponseError(err error, resp *github.Response, msg string, opts ...goerr.Option) error {
	if resp != nil {
		opts = append(opts, goerr.V("status", resp.StatusCode))
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		opts = append(opts, goerr.V("rate_limit_reset", rateErr.Rate.Reset.Time))
	}
	opts = append(opts, goerr.T(types.ErrTagTransient))
	return goerr.Wrap(err, msg, opts...)
}
