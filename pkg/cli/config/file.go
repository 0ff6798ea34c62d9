package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// File points to an optional configuration file with defaults for the
// publish flags
type File struct {
	Path string
}

// FileValues is the content of a configuration file. Unset keys leave the
// flag defaults in place.
type FileValues struct {
	Owner           string `toml:"owner" yaml:"owner"`
	Repo            string `toml:"repo" yaml:"repo"`
	TargetCommitish string `toml:"target_commitish" yaml:"target_commitish"`
	Draft           *bool  `toml:"draft" yaml:"draft"`
	Prerelease      *bool  `toml:"prerelease" yaml:"prerelease"`

	APIURL     string `toml:"api_url" yaml:"api_url"`
	UploadURL  string `toml:"upload_url" yaml:"upload_url"`
	GraphQLURL string `toml:"graphql_url" yaml:"graphql_url"`

	RetryLimit    *int   `toml:"retry_limit" yaml:"retry_limit"`
	RetryDelay    string `toml:"retry_delay" yaml:"retry_delay"`
	MaxRetryDelay string `toml:"max_retry_delay" yaml:"max_retry_delay"`
	Concurrency   *int   `toml:"concurrency" yaml:"concurrency"`
}

func (c *File) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Configuration file (.toml, .yaml or .yml)",
			Destination: &c.Path,
			Sources:     cli.EnvVars("HOIST_CONFIG"),
		},
	}
}

// Load reads the file. It returns empty values when no file is configured.
func (c *File) Load() (*FileValues, error) {
	var values FileValues
	if c.Path == "" {
		return &values, nil
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file",
			goerr.V("path", c.Path),
			goerr.T(types.ErrTagFatal))
	}

	switch strings.ToLower(filepath.Ext(c.Path)) {
	case ".toml":
		err = toml.Unmarshal(raw, &values)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &values)
	default:
		return nil, goerr.New("unsupported config file format",
			goerr.V("path", c.Path),
			goerr.T(types.ErrTagFatal))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file",
			goerr.V("path", c.Path),
			goerr.T(types.ErrTagFatal))
	}

	return &values, nil
}

// Apply copies file values into the flag structs for every flag that was not
// set explicitly, on the command line or through its environment variable.
func (v *FileValues) Apply(isSet func(name string) bool, release *Release, github *GitHub, retry *Retry) error {
	setString := func(flag string, dst *string, value string) {
		if value != "" && !isSet(flag) {
			*dst = value
		}
	}
	setBool := func(flag string, dst *bool, value *bool) {
		if value != nil && !isSet(flag) {
			*dst = *value
		}
	}
	setInt := func(flag string, dst *int, value *int) {
		if value != nil && !isSet(flag) {
			*dst = *value
		}
	}
	setDuration := func(flag string, dst *time.Duration, value string) error {
		if value == "" || isSet(flag) {
			return nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return goerr.Wrap(err, "invalid duration in config file",
				goerr.V("key", flag),
				goerr.V("value", value),
				goerr.T(types.ErrTagFatal))
		}
		*dst = d
		return nil
	}

	setString("owner", &release.Owner, v.Owner)
	setString("repo", &release.Repo, v.Repo)
	setString("target-commitish", &release.TargetCommitish, v.TargetCommitish)
	setBool("draft", &release.Draft, v.Draft)
	setBool("prerelease", &release.Prerelease, v.Prerelease)

	setString("github-api-url", &github.APIURL, v.APIURL)
	setString("github-upload-url", &github.UploadURL, v.UploadURL)
	setString("github-graphql-url", &github.GraphQLURL, v.GraphQLURL)

	setInt("retry-limit", &retry.Limit, v.RetryLimit)
	setInt("concurrency", &retry.Concurrency, v.Concurrency)
	if err := setDuration("retry-delay", &retry.Delay, v.RetryDelay); err != nil {
		return err
	}
	return setDuration("max-retry-delay", &retry.MaxDelay, v.MaxRetryDelay)
}
