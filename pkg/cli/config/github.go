package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/hoist/pkg/domain/types"
	githubinfra "github.com/m-mizutani/hoist/pkg/infra/github"
)

// Secrets are read from the environment, never from arguments
const (
	EnvGitHubToken         = "GITHUB_TOKEN"
	EnvGitHubAppPrivateKey = "HOIST_GITHUB_APP_PRIVATE_KEY"
)

// GitHub holds GitHub endpoint and credential configuration
type GitHub struct {
	APIURL     string
	UploadURL  string
	GraphQLURL string

	// Token is taken from GITHUB_TOKEN only
	Token string `masq:"secret"`

	AppID          int64
	InstallationID int64
	// PrivateKey is taken from HOIST_GITHUB_APP_PRIVATE_KEY only
	PrivateKey string `masq:"secret"`
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "github-api-url",
			Usage:       "GitHub REST API endpoint",
			Value:       githubinfra.DefaultBaseURL,
			Destination: &c.APIURL,
			Sources:     cli.EnvVars("HOIST_GITHUB_API_URL"),
		},
		&cli.StringFlag{
			Name:        "github-upload-url",
			Usage:       "GitHub upload endpoint, used when a release has no upload_url",
			Value:       githubinfra.DefaultUploadURL,
			Destination: &c.UploadURL,
			Sources:     cli.EnvVars("HOIST_GITHUB_UPLOAD_URL"),
		},
		&cli.StringFlag{
			Name:        "github-graphql-url",
			Usage:       "GitHub GraphQL endpoint (default: <api url>graphql)",
			Destination: &c.GraphQLURL,
			Sources:     cli.EnvVars("HOIST_GITHUB_GRAPHQL_URL"),
		},
		&cli.Int64Flag{
			Name:        "github-app-id",
			Usage:       "GitHub App ID, used instead of GITHUB_TOKEN; the private key is read from " + EnvGitHubAppPrivateKey,
			Destination: &c.AppID,
			Sources:     cli.EnvVars("HOIST_GITHUB_APP_ID"),
		},
		&cli.Int64Flag{
			Name:        "github-app-installation-id",
			Usage:       "GitHub App installation ID",
			Destination: &c.InstallationID,
			Sources:     cli.EnvVars("HOIST_GITHUB_APP_INSTALLATION_ID"),
		},
	}
}

func (c *GitHub) useApp() bool {
	return c.AppID != 0 || c.InstallationID != 0 || c.PrivateKey != ""
}

// Validate loads the secrets from the environment and checks that exactly
// one kind of credential is usable
func (c *GitHub) Validate() error {
	if c.Token == "" {
		c.Token = os.Getenv(EnvGitHubToken)
	}
	if c.PrivateKey == "" {
		c.PrivateKey = os.Getenv(EnvGitHubAppPrivateKey)
	}

	if c.useApp() {
		if c.AppID == 0 || c.InstallationID == 0 || c.PrivateKey == "" {
			return goerr.New("GitHub App authentication needs app ID, installation ID and private key",
				goerr.V("app_id", c.AppID),
				goerr.V("installation_id", c.InstallationID),
				goerr.T(types.ErrTagFatal))
		}
		return nil
	}

	if c.Token == "" {
		return goerr.New("GITHUB_TOKEN is not set", goerr.T(types.ErrTagFatal))
	}
	return nil
}

// NewClient builds the release directory for owner/repo
func (c *GitHub) NewClient(owner, repo string) (*githubinfra.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opts := []githubinfra.Option{
		githubinfra.WithBaseURL(c.APIURL),
		githubinfra.WithUploadURL(c.UploadURL),
	}
	if c.GraphQLURL != "" {
		opts = append(opts, githubinfra.WithGraphQLURL(c.GraphQLURL))
	}

	if c.useApp() {
		return githubinfra.NewAppClient(owner, repo, c.AppID, c.InstallationID, []byte(c.PrivateKey), opts...)
	}
	return githubinfra.NewClient(owner, repo, c.Token, opts...)
}
