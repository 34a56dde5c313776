package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// BatchProcessorConfig holds the collaborators of a BatchProcessor.
type BatchProcessorConfig struct {
	// Sources are queried for every valid image. Required.
	Sources []ports.SourceClient
	// Weights maps source names to aggregation weights. Sources missing
	// from the map weigh 0.
	Weights domain.Weights
	// Aggregator combines raw scores. Defaults to a WeightedAggregator
	// with the default validity filter.
	Aggregator domain.Aggregator
	// Validator applies pre-invocation checks. Defaults to the 5 MiB
	// JPEG/PNG limits.
	Validator *ImageValidator
	// Observer receives batch lifecycle events. Optional.
	Observer ports.BatchObserver
	// Duplicates groups perceptually identical images. Optional.
	Duplicates ports.DuplicateFinder
	// ImageConcurrency bounds how many images are scored at once.
	// Defaults to DefaultImageConcurrency.
	ImageConcurrency int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// BatchProcessor scores a batch of images against every configured source.
// Each image is validated, fanned out to all sources concurrently, joined
// and aggregated into a verdict. Images are independent: a failing source
// or image never cancels another.
type BatchProcessor struct {
	sources     []ports.SourceClient
	weights     domain.Weights
	aggregator  domain.Aggregator
	validator   *ImageValidator
	observer    ports.BatchObserver
	duplicates  ports.DuplicateFinder
	concurrency int
	logger      *slog.Logger
}

// NewBatchProcessor creates a processor. It returns an error when no
// sources are configured or a source name is used twice.
func NewBatchProcessor(config BatchProcessorConfig) (*BatchProcessor, error) {
	if len(config.Sources) == 0 {
		return nil, fmt.Errorf("%w: at least one source is required", domain.ErrInvalidConfiguration)
	}
	seen := make(map[string]struct{}, len(config.Sources))
	for _, src := range config.Sources {
		if _, dup := seen[src.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate source %q", domain.ErrInvalidConfiguration, src.Name())
		}
		seen[src.Name()] = struct{}{}
	}

	bp := &BatchProcessor{
		sources:     append([]ports.SourceClient(nil), config.Sources...),
		weights:     make(domain.Weights, len(config.Weights)),
		aggregator:  config.Aggregator,
		validator:   config.Validator,
		observer:    config.Observer,
		duplicates:  config.Duplicates,
		concurrency: config.ImageConcurrency,
		logger:      config.Logger,
	}
	// Weights are copied so callers cannot change them mid-run.
	for name, w := range config.Weights {
		bp.weights[name] = w
	}

	if bp.aggregator == nil {
		bp.aggregator = domain.NewWeightedAggregator(domain.DefaultValidityFilter())
	}
	if bp.validator == nil {
		bp.validator = NewImageValidator(DefaultMaxFileBytes, DefaultAllowedTypes)
	}
	if bp.observer == nil {
		bp.observer = nopObserver{}
	}
	if bp.concurrency <= 0 {
		bp.concurrency = DefaultImageConcurrency
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp, nil
}

// imageOutcome is the result slot of one image. Exactly one of verdict and
// err is meaningful.
type imageOutcome struct {
	image   domain.Image
	verdict domain.Verdict
	err     *domain.ImageError
}

// ProcessBatch scores images and returns verdicts and errors in input
// order.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, images []domain.Image) domain.BatchResult {
	return bp.run(ctx, len(images), func(i int) (domain.Image, error) {
		return images[i], nil
	})
}

// ProcessFiles loads and scores the images at paths. Unreadable files are
// reported as image errors alongside validation failures.
func (bp *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) domain.BatchResult {
	return bp.run(ctx, len(paths), func(i int) (domain.Image, error) {
		return bp.validator.Load(paths[i])
	})
}

// run drives one batch of n images obtained through load.
func (bp *BatchProcessor) run(ctx context.Context, n int, load func(int) (domain.Image, error)) domain.BatchResult {
	runID := uuid.NewString()
	started := time.Now()
	logger := bp.logger.With("run_id", runID)

	ctx = bp.observer.BatchStarted(ctx, runID, n)
	logger.Info("batch started", "images", n, "sources", len(bp.sources))

	outcomes := make([]imageOutcome, n)
	var g errgroup.Group
	g.SetLimit(bp.concurrency)
	for i := range n {
		g.Go(func() error {
			outcomes[i] = bp.processSlot(ctx, logger, i, load)
			return nil
		})
	}
	_ = g.Wait()

	result := domain.BatchResult{
		RunID:     runID,
		StartedAt: started,
		Verdicts:  make([]domain.Verdict, 0, n),
	}
	valid := make([]domain.Image, 0, n)
	for _, out := range outcomes {
		if out.err != nil {
			result.Errors = append(result.Errors, *out.err)
			continue
		}
		result.Verdicts = append(result.Verdicts, out.verdict)
		valid = append(valid, out.image)
	}
	result.Stats = domain.NewBatchStats(result.Verdicts)

	if bp.duplicates != nil && len(valid) > 1 {
		result.Duplicates = bp.duplicates.FindDuplicates(ctx, valid)
	}

	result.Duration = time.Since(started)
	bp.observer.BatchFinished(ctx, result)
	logger.Info("batch finished",
		"verdicts", len(result.Verdicts),
		"errors", len(result.Errors),
		"ai", result.AICount(),
		"duration", result.Duration,
	)
	if outages := result.Stats.Outages(); len(outages) > 0 {
		logger.Warn("sources failed on every image", "sources", outages)
	}
	return result
}

// processSlot loads, validates and scores image i. A panic anywhere in the
// slot becomes an ImageError for that image only.
func (bp *BatchProcessor) processSlot(
	ctx context.Context,
	logger *slog.Logger,
	i int,
	load func(int) (domain.Image, error),
) (out imageOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("image processing panicked", "index", i, "file", out.image.Name, "panic", r)
			out.err = domain.NewImageError(out.image.Name, fmt.Sprintf("internal error: %v", r), domain.ErrProcessingFailed)
		}
		if out.err != nil {
			bp.observer.ImageRejected(ctx, *out.err)
		}
	}()

	img, err := load(i)
	out.image = img
	if err == nil {
		img, err = bp.validator.Validate(img)
		out.image = img
	}
	if err == nil && ctx.Err() != nil {
		err = domain.NewImageError(img.Name, "batch canceled", fmt.Errorf("%w: %w", domain.ErrProcessingFailed, ctx.Err()))
	}
	if err != nil {
		out.err = asImageError(img.Name, err)
		logger.Info("image rejected", "file", img.Name, "reason", out.err.Reason)
		return out
	}

	scores := bp.scoreImage(ctx, logger, img)
	out.verdict = bp.aggregator.Aggregate(scores, bp.weights)
	out.verdict.File = img.Name

	elapsed := time.Since(start)
	bp.observer.ImageScored(ctx, out.verdict, elapsed)
	logger.Debug("image scored",
		"file", img.Name,
		"probability", out.verdict.Probability,
		"valid_sources", out.verdict.ValidAPICount,
		"elapsed", elapsed,
	)
	return out
}

// scoreImage invokes every source concurrently and joins the results. A
// source that panics counts as unavailable.
func (bp *BatchProcessor) scoreImage(ctx context.Context, logger *slog.Logger, img domain.Image) domain.RawScores {
	results := make([]*float64, len(bp.sources))

	var g errgroup.Group
	for i, src := range bp.sources {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("source panicked", "source", src.Name(), "file", img.Name, "panic", r)
					results[i] = nil
				}
			}()
			results[i] = src.Classify(ctx, img)
			return nil
		})
	}
	_ = g.Wait()

	scores := make(domain.RawScores, len(bp.sources))
	for i, src := range bp.sources {
		scores[src.Name()] = results[i]
	}
	return scores
}

// asImageError converts err into an ImageError for file, keeping an
// existing ImageError intact.
func asImageError(file string, err error) *domain.ImageError {
	var imgErr *domain.ImageError
	if errors.As(err, &imgErr) {
		return imgErr
	}
	return domain.NewImageError(file, err.Error(), fmt.Errorf("%w: %w", domain.ErrProcessingFailed, err))
}

// nopObserver is used when no observer is configured.
type nopObserver struct{}

func (nopObserver) BatchStarted(ctx context.Context, _ string, _ int) context.Context { return ctx }
func (nopObserver) ImageScored(context.Context, domain.Verdict, time.Duration) {}
func (nopObserver) ImageRejected(context.Context, domain.ImageError) {}
func (nopObserver) BatchFinished(context.Context, domain.BatchResult) {}
