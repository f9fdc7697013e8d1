package batchproc

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments groups the OpenTelemetry instruments recorded by Drain.
type instruments struct {
	batches       metric.Int64Counter
	transactions  metric.Int64Counter
	rejections    metric.Int64Counter
	drainDuration metric.Float64Histogram
}

// newInstruments creates the drain instruments. Creation errors are reported
// to the global OpenTelemetry error handler; the API still returns usable
// no-op instruments in that case.
func newInstruments(meter metric.Meter) instruments {
	var (
		ins  instruments
		err  error
		errs []error
	)

	ins.batches, err = meter.Int64Counter("txbatch.batches",
		metric.WithDescription("Batches produced by successful drains"),
	)
	errs = append(errs, err)

	ins.transactions, err = meter.Int64Counter("txbatch.transactions",
		metric.WithDescription("Transactions included in produced batches"),
	)
	errs = append(errs, err)

	ins.rejections, err = meter.Int64Counter("txbatch.rejections",
		metric.WithDescription("Drains that consumed transactions without producing a batch"),
	)
	errs = append(errs, err)

	ins.drainDuration, err = meter.Float64Histogram("txbatch.drain.duration",
		metric.WithDescription("Duration of successful drains"),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		otel.Handle(err)
	}

	return ins
}

func (i instruments) recordBatch(ctx context.Context, size int, total time.Duration) {
	i.batches.Add(ctx, 1)
	i.transactions.Add(ctx, int64(size))
	i.drainDuration.Record(ctx, total.Seconds())
}

func (i instruments) recordRejection(ctx context.Context, reason string) {
	i.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
