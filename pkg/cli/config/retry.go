package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/hoist/pkg/domain/types"
	"github.com/m-mizutani/hoist/pkg/usecase"
)

// Retry holds the retry budget and parallelism
type Retry struct {
	Limit       int
	Delay       time.Duration
	MaxDelay    time.Duration
	Concurrency int
}

// Flags returns CLI flags for retry configuration
func (c *Retry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "retry-limit",
			Usage:       "Attempts for the release and for each asset",
			Value:       usecase.DefaultRetryLimit,
			Destination: &c.Limit,
			Sources:     cli.EnvVars("HOIST_RETRY_LIMIT"),
		},
		&cli.DurationFlag{
			Name:        "retry-delay",
			Usage:       "Wait before the first retry, doubled on each further retry",
			Value:       usecase.DefaultRetryDelay,
			Destination: &c.Delay,
			Sources:     cli.EnvVars("HOIST_RETRY_DELAY"),
		},
		&cli.DurationFlag{
			Name:        "max-retry-delay",
			Usage:       "Upper bound of the wait between retries",
			Value:       usecase.DefaultMaxRetryDelay,
			Destination: &c.MaxDelay,
			Sources:     cli.EnvVars("HOIST_MAX_RETRY_DELAY"),
		},
		&cli.IntFlag{
			Name:        "concurrency",
			Usage:       "Number of assets processed in parallel",
			Value:       1,
			Destination: &c.Concurrency,
			Sources:     cli.EnvVars("HOIST_CONCURRENCY"),
		},
	}
}

func (c *Retry) Validate() error {
	if c.Limit < 1 {
		return goerr.New("--retry-limit must be at least 1", goerr.V("retry_limit", c.Limit), goerr.T(types.ErrTagFatal))
	}
	if c.Concurrency < 1 {
		return goerr.New("--concurrency must be at least 1", goerr.V("concurrency", c.Concurrency), goerr.T(types.ErrTagFatal))
	}
	if c.Delay < 0 || c.MaxDelay < 0 {
		return goerr.New("retry delays must not be negative",
			goerr.V("retry_delay", c.Delay),
			goerr.V("max_retry_delay", c.MaxDelay),
			goerr.T(types.ErrTagFatal))
	}
	return nil
}

// Options converts the configuration into Publisher options
func (c *Retry) Options() []usecase.Option {
	return []usecase.Option{
		usecase.WithRetryLimit(c.Limit),
		usecase.WithRetryDelay(c.Delay),
		usecase.WithMaxRetryDelay(c.MaxDelay),
		usecase.WithConcurrency(c.Concurrency),
	}
}
