package cacheinfra

import (
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

// NewBackend builds the backend selected by cfg.Backend. When metrics is not
// nil the backend is wrapped in an InstrumentedStore.
func NewBackend(cfg Config, logger *zap.Logger, metrics *StoreMetrics) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		impl Backend
		err  error
	)

	switch cfg.Backend {
	case BackendRedis:
		impl, err = NewRedisStore(cfg.Redis, cfg.KeyPrefix, logger)
	case BackendMemory:
		impl, err = NewMemoryStore(cfg.Memory)
	default:
		return nil, goerrors.New("unknown cache backend "+strconv.Quote(cfg.Backend), goerrors.CategoryBadInput)
	}

	if err != nil {
		return nil, err
	}

	logger.Info("cache backend ready", zap.String("backend", cfg.Backend))

	if metrics == nil {
		return impl, nil
	}

	return NewInstrumentedStore(impl, cfg.Backend, metrics), nil
}
