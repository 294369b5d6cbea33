package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/booking-assistant/pkg/metrics"
)

type instrumented struct {
	inner   Store
	metrics *metrics.Metrics
}

type instrumentedGuarded struct {
	instrumented
	guarded GuardedWriter
}

// Instrument records operation counts and latency. The result still
// implements GuardedWriter when inner does.
func Instrument(inner Store, m *metrics.Metrics) Store {
	base := instrumented{inner: inner, metrics: m}
	if g, ok := inner.(GuardedWriter); ok {
		return &instrumentedGuarded{instrumented: base, guarded: g}
	}
	return &base
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, ErrConflict):
		status = "conflict"
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	s.metrics.StoreOperations.WithLabelValues(op, status).Inc()
	s.metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *instrumented) Read(ctx context.Context, table string, filter Filter) (rows []Row, err error) {
	defer func(start time.Time) { s.observe("read_"+table, start, err) }(time.Now())
	return s.inner.Read(ctx, table, filter)
}

func (s *instrumented) Append(ctx context.Context, table string, rows ...Row) (err error) {
	defer func(start time.Time) { s.observe("append_"+table, start, err) }(time.Now())
	return s.inner.Append(ctx, table, rows...)
}

func (s *instrumented) Update(ctx context.Context, table, key string, row Row) (err error) {
	defer func(start time.Time) { s.observe("update_"+table, start, err) }(time.Now())
	return s.inner.Update(ctx, table, key, row)
}

func (s *instrumented) Delete(ctx context.Context, table string, filter Filter) (n int, err error) {
	defer func(start time.Time) { s.observe("delete_"+table, start, err) }(time.Now())
	return s.inner.Delete(ctx, table, filter)
}

func (s *instrumentedGuarded) WriteGuarded(ctx context.Context, w GuardedWrite) (err error) {
	defer func(start time.Time) { s.observe("guarded_"+w.Table, start, err) }(time.Now())
	return s.guarded.WriteGuarded(ctx, w)
}
