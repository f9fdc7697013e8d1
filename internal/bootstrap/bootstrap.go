// Package bootstrap assembles the transfer batching pipeline from a Config:
// telemetry, logging, the batch processor with the ledger rules (plus the
// optional remote check), and the optional Redis batch stream.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabapcia/txbatch/internal/batchproc"
	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/config"
	"github.com/gabapcia/txbatch/internal/infra/remotecheck"
	redisstore "github.com/gabapcia/txbatch/internal/infra/storage/redis"
	"github.com/gabapcia/txbatch/internal/ledger"
	"github.com/gabapcia/txbatch/internal/pkg/logger"
	"github.com/gabapcia/txbatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/txbatch/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/txbatch/internal/pkg/transport/http"
	"github.com/gabapcia/txbatch/internal/pkg/x/chflow"
)

// ErrAlreadyRunning is returned by Run while another Run is active.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Publisher stores accepted batches. *redis.BatchStream satisfies it.
type Publisher interface {
	Publish(ctx context.Context, b batchproc.Batch[ledger.Transfer]) (string, error)
}

// App is the assembled pipeline.
type App struct {
	processor *batchproc.Processor[ledger.Transfer]
	publisher Publisher
	retry     retry.Retry

	closers []func(ctx context.Context) error
}

// Option adjusts an App built by New.
type Option func(*App)

// WithPublisher replaces the publisher derived from the Redis configuration.
func WithPublisher(p Publisher) Option {
	return func(a *App) {
		a.publisher = p
	}
}

// WithRetry replaces the retry policy used to publish batches.
func WithRetry(r retry.Retry) Option {
	return func(a *App) {
		a.retry = r
	}
}

// New builds the pipeline described by cfg. Telemetry is initialized before
// the logger so log records are also exported over OTLP.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	app := &App{
		retry: retry.New(retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, redisstore.ErrAlreadyPublished)
		})),
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		app.closers = append(app.closers, shutdown)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, errors.Join(fmt.Errorf("init logger: %w", err), app.Close(ctx))
	}

	predicate := ledger.Rules()
	if cfg.RemoteCheck.Enabled() {
		client := remotecheck.NewClient(cfg.RemoteCheck.URL,
			transporthttp.WithTimeout(cfg.RemoteCheck.Timeout),
			transporthttp.WithRetryMax(cfg.RemoteCheck.RetryMax),
		)
		predicate = batchvalidator.All(predicate, remotecheck.Predicate[ledger.Transfer](client, cfg.RemoteCheck.Method))
	}

	app.processor = batchproc.New[ledger.Transfer](
		batchvalidator.New(predicate),
		batchproc.WithThroughputGoal(cfg.Processor.ThroughputGoal),
		batchproc.WithDrainInterval(cfg.Processor.DrainInterval),
		batchproc.WithFlushThreshold(cfg.Processor.FlushThreshold),
	)

	if cfg.Redis.Enabled() {
		rc, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), app.Close(ctx))
		}
		app.closers = append(app.closers, func(context.Context) error { return rc.Close() })
		app.publisher = redisstore.NewBatchStream[ledger.Transfer](rc, cfg.Redis.Stream, cfg.Redis.MaxLen)
	}

	for _, opt := range opts {
		opt(app)
	}

	logger.Info(ctx, "pipeline assembled",
		"remote_check", cfg.RemoteCheck.Enabled(),
		"redis", cfg.Redis.Enabled(),
		"telemetry", cfg.Telemetry.Enabled,
		"drain_interval", cfg.Processor.DrainInterval,
	)
	return app, nil
}

// Submit queues transfers for the next batch.
func (a *App) Submit(txs ...ledger.Transfer) {
	a.processor.Enqueue(txs...)
}

// Metrics returns the processor's metrics snapshot.
func (a *App) Metrics() batchproc.Metrics {
	return a.processor.Metrics()
}

// Run drains batches until ctx is done and hands each accepted batch to the
// publisher. Transfers still pending when ctx is done are drained one last
// time before Run returns.
func (a *App) Run(ctx context.Context) error {
	batches, err := a.processor.Start(ctx)
	if err != nil {
		if errors.Is(err, batchproc.ErrServiceAlreadyStarted) {
			return ErrAlreadyRunning
		}
		return err
	}
	defer a.processor.Close()

	for {
		batch, ok := chflow.Receive(ctx, batches)
		if !ok {
			break
		}
		a.publish(ctx, batch)
	}

	// ctx is done, so the drain loop is stopping. Read until it closes the
	// channel, then drain the rest, publishing with a context that is still
	// alive.
	for batch := range batches {
		a.publish(context.WithoutCancel(ctx), batch)
	}
	a.flush(context.WithoutCancel(ctx))

	return nil
}

func (a *App) flush(ctx context.Context) {
	batch, err := a.processor.Drain(ctx)
	switch {
	case err == nil:
		a.publish(ctx, batch)
	case errors.Is(err, batchvalidator.ErrEmptyBatch):
	default:
		logger.Warn(ctx, "final drain produced no batch", "error", err)
	}
}

func (a *App) publish(ctx context.Context, batch batchproc.Batch[ledger.Transfer]) {
	ctx = logger.Derive(ctx, "batch.id", batch.ID, "batch.size", batch.Len())

	if a.publisher == nil {
		logger.Info(ctx, "batch committed", "batch.digest", batch.Digest.String())
		return
	}

	var entryID string
	err := a.retry.Execute(ctx, func(ctx context.Context) error {
		var err error
		entryID, err = a.publisher.Publish(ctx, batch)
		return err
	})

	switch {
	case err == nil:
		logger.Info(ctx, "batch published", "batch.digest", batch.Digest.String(), "entry_id", entryID)
	case errors.Is(err, redisstore.ErrAlreadyPublished):
		logger.Debug(ctx, "batch was already published")
	default:
		logger.Error(ctx, "batch publish failed", "error", err)
	}
}

// Close releases everything New acquired, in reverse order, and flushes the
// logger. It does not stop a running Run; cancel its context first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil

	// Sync on a terminal stdout returns EINVAL on Linux.
	_ = logger.Sync()

	return errors.Join(errs...)
}
