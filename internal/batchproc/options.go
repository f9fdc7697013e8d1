package batchproc

import (
	"context"
	"errors"
	"time"

	"github.com/gabapcia/txbatch/internal/batchvalidator"
	"github.com/gabapcia/txbatch/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultThroughputGoal is the reporting target in transactions per second.
	DefaultThroughputGoal = 100_000

	// DefaultDrainInterval is how often the drain loop started by Start drains
	// the buffer when no flush threshold is hit.
	DefaultDrainInterval = 2 * time.Second

	instrumentationName = "github.com/gabapcia/txbatch/internal/batchproc"
)

// RejectionHandler is called by the drain loop for every drain that consumed
// transactions without producing a batch (rejections other than an empty
// buffer, and predicate faults). err is a *DrainError.
type RejectionHandler func(ctx context.Context, err error)

type config struct {
	throughputGoal   float64
	drainInterval    time.Duration
	flushThreshold   int
	clock            func() time.Time
	rejectionHandler RejectionHandler
	meter            metric.Meter
	tracer           trace.Tracer
}

// Option configures a Processor.
type Option func(*config)

func defaultConfig() config {
	return config{
		throughputGoal:   DefaultThroughputGoal,
		drainInterval:    DefaultDrainInterval,
		clock:            time.Now,
		rejectionHandler: defaultOnRejection,
		meter:            otel.Meter(instrumentationName),
		tracer:           otel.Tracer(instrumentationName),
	}
}

// defaultOnRejection logs the rejected drain.
func defaultOnRejection(ctx context.Context, err error) {
	var rejection *batchvalidator.RejectionError
	if errors.As(err, &rejection) {
		logger.Warn(ctx, "batch rejected",
			"batch.size", rejection.Count,
			"batch.reason", rejection.Reason.String(),
		)
		return
	}

	logger.Error(ctx, "batch validation faulted", "error", err)
}

// WithThroughputGoal sets the transactions-per-second goal used for
// Metrics.TargetAchieved. Default: 100000.
func WithThroughputGoal(goal float64) Option {
	return func(c *config) {
		c.throughputGoal = goal
	}
}

// WithDrainInterval sets the period of the drain loop started by Start.
// Non-positive values keep the default of 2 seconds.
func WithDrainInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.drainInterval = d
		}
	}
}

// WithFlushThreshold makes the drain loop drain as soon as the buffer holds at
// least n transactions, without waiting for the next interval. Zero disables it.
func WithFlushThreshold(n int) Option {
	return func(c *config) {
		c.flushThreshold = n
	}
}

// WithClock replaces time.Now, mainly for deterministic timing in tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.clock = now
	}
}

// WithRejectionHandler replaces the default handler, which logs.
func WithRejectionHandler(h RejectionHandler) Option {
	return func(c *config) {
		c.rejectionHandler = h
	}
}

// WithMeter sets the meter used for drain metrics. Default: the global meter.
func WithMeter(m metric.Meter) Option {
	return func(c *config) {
		c.meter = m
	}
}

// WithTracer sets the tracer used for drain spans. Default: the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) {
		c.tracer = t
	}
}
