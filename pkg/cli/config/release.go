package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

// Release holds the repository and the requested release
type Release struct {
	Owner           string
	Repo            string
	TagName         string
	TargetCommitish string
	Name            string
	BodyString      string
	BodyFile        string
	Draft           bool
	Prerelease      bool
}

// Flags returns CLI flags for the release
func (c *Release) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "owner",
			Aliases:     []string{"user"},
			Usage:       "Repository owner",
			Destination: &c.Owner,
			Sources:     cli.EnvVars("HOIST_OWNER"),
		},
		&cli.StringFlag{
			Name:        "repo",
			Usage:       "Repository name",
			Destination: &c.Repo,
			Sources:     cli.EnvVars("HOIST_REPO"),
		},
		&cli.StringFlag{
			Name:        "tag-name",
			Usage:       "Tag of the release; created from the target commitish if it does not exist",
			Required:    true,
			Destination: &c.TagName,
			Sources:     cli.EnvVars("HOIST_TAG_NAME"),
		},
		&cli.StringFlag{
			Name:        "target-commitish",
			Usage:       "Branch or commit SHA the tag is created from",
			Destination: &c.TargetCommitish,
			Sources:     cli.EnvVars("HOIST_TARGET_COMMITISH"),
		},
		&cli.StringFlag{
			Name:        "release-name",
			Usage:       "Name of the release",
			Destination: &c.Name,
			Sources:     cli.EnvVars("HOIST_RELEASE_NAME"),
		},
		&cli.StringFlag{
			Name:        "body-string",
			Usage:       "Release notes; exclusive with --body-file",
			Destination: &c.BodyString,
		},
		&cli.StringFlag{
			Name:        "body-file",
			Usage:       "File holding the release notes; exclusive with --body-string",
			Destination: &c.BodyFile,
		},
		&cli.BoolFlag{
			Name:        "draft",
			Usage:       "Create the release as a draft",
			Destination: &c.Draft,
			Sources:     cli.EnvVars("HOIST_DRAFT"),
		},
		&cli.BoolFlag{
			Name:        "prerelease",
			Usage:       "Mark the release as a prerelease",
			Destination: &c.Prerelease,
			Sources:     cli.EnvVars("HOIST_PRERELEASE"),
		},
	}
}

// Repository returns "owner/repo"
func (c *Release) Repository() string {
	return c.Owner + "/" + c.Repo
}

// Target validates the flags and builds the requested release
func (c *Release) Target() (*model.ReleaseTarget, error) {
	if c.Owner == "" || c.Repo == "" {
		return nil, goerr.New("--owner and --repo are required",
			goerr.V("owner", c.Owner),
			goerr.V("repo", c.Repo),
			goerr.T(types.ErrTagFatal))
	}

	body, err := c.body()
	if err != nil {
		return nil, err
	}

	target := &model.ReleaseTarget{
		TagName:         c.TagName,
		TargetCommitish: c.TargetCommitish,
		Name:            c.Name,
		Body:            body,
		Draft:           c.Draft,
		Prerelease:      c.Prerelease,
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}

func (c *Release) body() (string, error) {
	switch {
	case c.BodyString != "" && c.BodyFile != "":
		return "", goerr.New("only one of --body-string and --body-file can be given", goerr.T(types.ErrTagFatal))
	case c.BodyFile != "":
		raw, err := os.ReadFile(c.BodyFile)
		if err != nil {
			return "", goerr.Wrap(err, "failed to read body file",
				goerr.V("path", c.BodyFile),
				goerr.T(types.ErrTagFatal))
		}
		return string(raw), nil
	case c.BodyString != "":
		return c.BodyString, nil
	default:
		return "", goerr.New("one of --body-string and --body-file is required", goerr.T(types.ErrTagFatal))
	}
}
