package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/m-mizutani/hoist/pkg/domain/interfaces"
	"github.com/m-mizutani/hoist/pkg/domain/model"
	"github.com/m-mizutani/hoist/pkg/domain/types"
	"github.com/m-mizutani/hoist/pkg/utils/async"
)

const (
	DefaultRetryLimit    = 10
	DefaultRetryDelay    = 2 * time.Second
	DefaultMaxRetryDelay = time.Minute
)

type publisher struct {
	resolver   *ReleaseResolver
	reconciler *AssetReconciler

	retryLimit    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	concurrency   int
}

// Option is a functional option for the publisher
type Option func(*publisher)

// WithRetryLimit sets the number of attempts allowed for the release and for each asset
func WithRetryLimit(limit int) Option {
	return func(p *publisher) {
		p.retryLimit = limit
	}
}

// WithRetryDelay sets the wait before the second attempt. It doubles on each further attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(p *publisher) {
		p.retryDelay = d
	}
}

// WithMaxRetryDelay caps the wait between attempts
func WithMaxRetryDelay(d time.Duration) Option {
	return func(p *publisher) {
		p.maxRetryDelay = d
	}
}

// WithConcurrency sets how many assets are reconciled in parallel
func WithConcurrency(n int) Option {
	return func(p *publisher) {
		p.concurrency = n
	}
}

// NewPublisher creates the retry driver on top of a release directory
func NewPublisher(directory interfaces.ReleaseDirectory, opts ...Option) interfaces.Publisher {
	p := &publisher{
		resolver:      NewReleaseResolver(directory),
		reconciler:    NewAssetReconciler(directory),
		retryLimit:    DefaultRetryLimit,
		retryDelay:    DefaultRetryDelay,
		maxRetryDelay: DefaultMaxRetryDelay,
		concurrency:   1,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.retryLimit < 1 {
		p.retryLimit = 1
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}

	return p
}

// Publish resolves the release, then reconciles each source with its own retry budget.
// The release must be resolved before any asset is touched.
func (p *publisher) Publish(ctx context.Context, target *model.ReleaseTarget, sources []interfaces.AssetSource) (*model.PublishResult, error) {
	logger := ctxlog.From(ctx)
	result := &model.PublishResult{}

	if err := target.Validate(); err != nil {
		return result, err
	}
	if err := checkSources(sources); err != nil {
		return result, err
	}

	logger.Info("Publishing release",
		"tag", target.TagName,
		"assets", len(sources),
		"retry_limit", p.retryLimit,
		"concurrency", p.concurrency,
	)

	release, created, attempts, err := p.resolveRelease(ctx, target)
	result.ReleaseAttempts = attempts
	if err != nil {
		return result, err
	}
	result.Release = release
	result.ReleaseCreated = created

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result.Assets = make([]*model.AssetResult, len(sources))

	var eg errgroup.Group
	eg.SetLimit(p.concurrency)
	for i, src := range sources {
		eg.Go(func() error {
			res := p.publishAsset(ctx, release, src)
			result.Assets[i] = res

			// An exhausted budget only fails this asset; anything else
			// non-retryable stops the assets that have not finished yet.
			if res.Err != nil && !goerr.HasTag(res.Err, errTagExhausted) {
				cancel()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return result, goerr.Wrap(err, "asset worker failed")
	}

	failed := result.Failed()
	if len(failed) == 0 {
		logger.Info("Release published",
			"tag", release.TagName,
			"release_id", release.ID,
			"assets", len(result.Assets),
		)
		return result, nil
	}

	names := make([]string, 0, len(failed))
	causes := make([]error, 0, len(failed))
	for _, f := range failed {
		names = append(names, f.Name)
		causes = append(causes, f.Err)
	}

	return result, goerr.Wrap(errors.Join(causes...),
		fmt.Sprintf("failed to publish %d asset(s): %s", len(names), strings.Join(names, ", ")),
		goerr.V("tag", target.TagName),
		goerr.V("assets", names),
		goerr.T(types.ErrTagFatal))
}

// errTagExhausted marks a unit of work that used up its retry budget
var errTagExhausted = goerr.NewTag("retry_exhausted")

func (p *publisher) resolveRelease(ctx context.Context, target *model.ReleaseTarget) (*model.Release, bool, int, error) {
	var (
		release  *model.Release
		created  bool
		attempts int
	)

	err := retry.Do(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts++
		r, c, err := p.resolver.Resolve(ctx, target)
		if err != nil {
			return err
		}
		release, created = r, c
		return nil
	}, p.retryOptions(ctx, ctxlog.From(ctx).With("unit", "release"))...)

	if err != nil {
		return nil, false, attempts, p.finalError(ctx, err, attempts, "release",
			goerr.V("tag", target.TagName))
	}

	return release, created, attempts, nil
}

func (p *publisher) publishAsset(ctx context.Context, release *model.Release, src interfaces.AssetSource) *model.AssetResult {
	logger := ctxlog.From(ctx).With("asset", src.Name())
	res := &model.AssetResult{
		Name: src.Name(),
		Size: src.Size(),
	}

	err := async.Run(ctx, func(ctx context.Context) error {
		return retry.Do(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Attempts++
			outcome, err := p.reconciler.Reconcile(ctx, release, src)
			if err != nil {
				return err
			}

			res.Outcome = outcome
			if outcome == model.OutcomeNeedsRetry {
				return goerr.New("asset is not in the expected state after upload",
					goerr.V("asset", src.Name()),
					goerr.T(types.ErrTagTransient))
			}
			return nil
		}, p.retryOptions(ctx, logger)...)
	})

	if err != nil {
		res.Err = p.finalError(ctx, err, res.Attempts, "asset", goerr.V("asset", src.Name()))
		logger.Error("Asset failed",
			"attempts", res.Attempts,
			"error", res.Err,
		)
	}

	return res
}

// finalError turns the last error of a retry loop into the error reported for a unit
func (p *publisher) finalError(ctx context.Context, err error, attempts int, unit string, opts ...goerr.Option) error {
	opts = append(opts, goerr.V("attempts", attempts), goerr.T(types.ErrTagFatal))

	if ctxErr := ctx.Err(); ctxErr != nil {
		if !errors.Is(err, ctxErr) {
			err = errors.Join(ctxErr, err)
		}
		return goerr.Wrap(err, fmt.Sprintf("run was cancelled before %s converged", unit), opts...)
	}
	if types.ShouldRetry(err) {
		opts = append(opts, goerr.T(errTagExhausted))
		return goerr.Wrap(err, fmt.Sprintf("reached retry limit for %s", unit), opts...)
	}
	return goerr.Wrap(err, fmt.Sprintf("failed to publish %s", unit), opts...)
}

func (p *publisher) retryOptions(ctx context.Context, logger *slog.Logger) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(p.retryLimit)),
		retry.Delay(p.retryDelay),
		retry.MaxDelay(p.maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		// A cancelled run stops here; timeouts of single requests are retried
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && types.ShouldRetry(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Attempt failed",
				"attempt", n+1,
				"limit", p.retryLimit,
				"class", types.Classify(err),
				"error", err,
			)
		}),
	}
}

// checkSources rejects input that would make two workers race on one asset name
func checkSources(sources []interfaces.AssetSource) error {
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if src == nil {
			return goerr.New("asset source is nil", goerr.T(types.ErrTagFatal))
		}
		if src.Name() == "" {
			return goerr.New("asset name is empty", goerr.T(types.ErrTagFatal))
		}
		if _, ok := seen[src.Name()]; ok {
			return goerr.New("duplicate asset name",
				goerr.V("asset", src.Name()),
				goerr.T(types.ErrTagFatal))
		}
		seen[src.Name()] = struct{}{}
	}
	return nil
}
