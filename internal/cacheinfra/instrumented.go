package cacheinfra

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Backend is the method set shared by every store in this package.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	AddToSet(ctx context.Context, set, member string, ttl time.Duration) error
	Members(ctx context.Context, set string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
	SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, tagTTL time.Duration) error
	Ping(ctx context.Context) error
	io.Closer
}

var (
	_ Backend = (*RedisStore)(nil)
	_ Backend = (*MemoryStore)(nil)
	_ Backend = (*InstrumentedStore)(nil)
)

// StoreMetrics holds the collectors updated by InstrumentedStore.
type StoreMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewStoreMetrics creates the cache collectors and registers them with reg
// when reg is not nil.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache backend operations by operation and result.",
		}, []string{"backend", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Cache backend operation latency.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"backend", "operation"}),
	}

	if reg != nil {
		reg.MustRegister(m.operations, m.duration)
	}

	return m
}

// InstrumentedStore decorates a Backend recording operation counts and latency.
type InstrumentedStore struct {
	impl    Backend
	name    string
	metrics *StoreMetrics
}

// NewInstrumentedStore wraps impl; name labels the samples ("redis", "memory").
func NewInstrumentedStore(impl Backend, name string, metrics *StoreMetrics) *InstrumentedStore {
	if metrics == nil {
		metrics = NewStoreMetrics(nil)
	}
	return &InstrumentedStore{impl: impl, name: name, metrics: metrics}
}

func (s *InstrumentedStore) record(op, result string, start time.Time) {
	s.metrics.operations.WithLabelValues(s.name, op, result).Inc()
	s.metrics.duration.WithLabelValues(s.name, op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := s.impl.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case found:
		result = "hit"
	}

	s.record("get", result, start)
	return value, found, err
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.impl.Set(ctx, key, value, ttl)
	s.record("set", outcome(err), start)
	return err
}

func (s *InstrumentedStore) AddToSet(ctx context.Context, set, member string, ttl time.Duration) error {
	start := time.Now()
	err := s.impl.AddToSet(ctx, set, member, ttl)
	s.record("add_to_set", outcome(err), start)
	return err
}

func (s *InstrumentedStore) Members(ctx context.Context, set string) ([]string, error) {
	start := time.Now()
	members, err := s.impl.Members(ctx, set)
	s.record("members", outcome(err), start)
	return members, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.impl.Delete(ctx, keys...)
	s.record("delete", outcome(err), start)
	return err
}

func (s *InstrumentedStore) SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, tagTTL time.Duration) error {
	start := time.Now()
	err := s.impl.SetTagged(ctx, key, value, ttl, tag, tagTTL)
	s.record("set_tagged", outcome(err), start)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.impl.Ping(ctx)
	s.record("ping", outcome(err), start)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.impl.Close()
}
