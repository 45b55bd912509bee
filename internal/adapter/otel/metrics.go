package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "recall"

// Metrics holds all recall metric instruments.
type Metrics struct {
	CallsTracked  metric.Int64Counter
	CallsFailed   metric.Int64Counter
	Requests      metric.Int64Counter
	CacheHits     metric.Int64Counter
	FetchDuration metric.Float64Histogram
	ValuesStored  metric.Int64Counter
}

// NewMetrics creates all metric instruments on mp, or on the global meter
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CallsTracked, err = meter.Int64Counter("recall.calls.tracked",
		metric.WithDescription("Number of tracked operation calls"))
	if err != nil {
		return nil, err
	}

	m.CallsFailed, err = meter.Int64Counter("recall.calls.failed",
		metric.WithDescription("Number of tracked operation calls that returned an error"))
	if err != nil {
		return nil, err
	}

	m.Requests, err = meter.Int64Counter("recall.requests",
		metric.WithDescription("Number of memoized page requests"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("recall.requests.cache_hits",
		metric.WithDescription("Number of page requests answered from the cache"))
	if err != nil {
		return nil, err
	}

	m.FetchDuration, err = meter.Float64Histogram("recall.fetch.duration_seconds",
		metric.WithDescription("Upstream fetch duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.ValuesStored, err = meter.Int64Counter("recall.values.stored",
		metric.WithDescription("Number of values written by the value store"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
