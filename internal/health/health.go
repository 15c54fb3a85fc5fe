// Package health runs the readiness checks behind the health endpoints.
package health

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-user-cache/internal/database"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status messages returned by the health endpoints.
const (
	StatusAlive    = "Service is alive."
	StatusReady    = "Service is ready."
	StatusNotReady = "Service is not ready."
)

// DefaultTimeout bounds a check run when the caller sets no deadline.
const DefaultTimeout = 3 * time.Second

// Pinger is any dependency that can answer a liveness ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Check is one named check with the details reported for each outcome.
type Check struct {
	Name   string
	Target Pinger
	OK     string
	Failed string
}

// DatabaseCheck pings db with SELECT 1.
func DatabaseCheck(db bun.IDB) Check {
	return Check{
		Name: "database",
		Target: PingerFunc(func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}),
		OK:     "Database connection OK.",
		Failed: "Unable to connect to the database.",
	}
}

// CacheCheck pings the cache backend with PING.
func CacheCheck(p Pinger) Check {
	return Check{
		Name:   "cache",
		Target: p,
		OK:     "Redis connection OK.",
		Failed: "Redis connection failed.",
	}
}

// Result is the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail"`
	Error   string `json:"error,omitempty"`
}

// Report is the body rendered by the readiness endpoints.
type Report struct {
	Status  string   `json:"status"`
	Details string   `json:"details,omitempty"`
	Checks  []Result `json:"checks,omitempty"`
	Healthy bool     `json:"-"`
}

// Checker runs a fixed set of checks concurrently.
type Checker struct {
	checks  []Check
	timeout time.Duration
	logger  *zap.Logger
}

// NewChecker creates a Checker. A zero timeout selects DefaultTimeout.
func NewChecker(timeout time.Duration, logger *zap.Logger, checks ...Check) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		checks:  checks,
		timeout: timeout,
		logger:  logger.Named("health"),
	}
}

// Alive reports liveness. It never touches a dependency.
func (c *Checker) Alive() Report {
	return Report{Status: StatusAlive, Healthy: true}
}

// Ready runs every check. When verbose is set the report carries the
// per-check details in check order.
func (c *Checker) Ready(ctx context.Context, verbose bool) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]Result, len(c.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range c.checks {
		g.Go(func() error {
			results[i] = c.run(gctx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusReady, Healthy: true}
	var details strings.Builder
	for _, res := range results {
		details.WriteString(res.Detail)
		details.WriteString("\n")
		if !res.Healthy {
			report.Status = StatusNotReady
			report.Healthy = false
		}
	}

	if verbose {
		report.Details = details.String()
		report.Checks = results
	}

	return report
}

func (c *Checker) run(ctx context.Context, check Check) Result {
	if check.Target == nil {
		return Result{Name: check.Name, Detail: check.Failed, Error: "no target configured"}
	}

	if err := check.Target.Ping(ctx); err != nil {
		c.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
		return Result{Name: check.Name, Detail: check.Failed, Error: err.Error()}
	}

	return Result{Name: check.Name, Healthy: true, Detail: check.OK}
}
