package hierarchy

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "agencyflow/hierarchy"

type instruments struct {
	tracer   trace.Tracer
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	failures metric.Int64Counter
}

// newInstruments binds to the global providers. When an instrument cannot be
// created the no-op meter is used so resolution never fails on telemetry.
func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	ins := instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	if ins.hits, err = meter.Int64Counter("hierarchy.cache.hits",
		metric.WithDescription("Resolutions served from cache"),
		metric.WithUnit("1")); err != nil {
		return noopInstruments(ins.tracer)
	}
	if ins.misses, err = meter.Int64Counter("hierarchy.cache.misses",
		metric.WithDescription("Resolutions that required a store traversal"),
		metric.WithUnit("1")); err != nil {
		return noopInstruments(ins.tracer)
	}
	if ins.failures, err = meter.Int64Counter("hierarchy.strategy.failures",
		metric.WithDescription("Resolution strategies that returned an error"),
		metric.WithUnit("1")); err != nil {
		return noopInstruments(ins.tracer)
	}
	return ins
}

func noopInstruments(tracer trace.Tracer) instruments {
	meter := noop.NewMeterProvider().Meter(instrumentationName)
	hits, _ := meter.Int64Counter("hierarchy.cache.hits")
	misses, _ := meter.Int64Counter("hierarchy.cache.misses")
	failures, _ := meter.Int64Counter("hierarchy.strategy.failures")
	return instruments{tracer: tracer, hits: hits, misses: misses, failures: failures}
}
