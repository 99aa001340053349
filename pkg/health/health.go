// Package health serves liveness, readiness and dependency probes for the API.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// CheckFunc probes one backing service
type CheckFunc func(ctx context.Context) error

type probe struct {
	name     string
	required bool
	fn       CheckFunc
}

// Checker probes the database, lock store and graph the API depends on.
// Postgres and Redis are required; a failing optional probe such as the
// lineage graph only degrades the service.
type Checker struct {
	started time.Time
	version string
	timeout time.Duration
	ready   atomic.Bool

	mu     sync.RWMutex
	probes []probe
}

func NewChecker(version string) *Checker {
	return &Checker{
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a probe under name
func (c *Checker) AddCheck(name string, required bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe{name: name, required: required, fn: fn})
}

// SetReady flips readiness once startup finished, and back during shutdown
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) IsReady() bool {
	return c.ready.Load()
}

// Run executes every probe concurrently, each bounded by the probe timeout
func (c *Checker) Run(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	probes := append([]probe(nil), c.probes...)
	c.mu.RUnlock()

	results := make([]CheckResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.probe(ctx, p)
		}()
	}
	wg.Wait()

	byName := make(map[string]CheckResult, len(probes))
	for i, p := range probes {
		byName[p.name] = results[i]
	}
	return byName
}

func (c *Checker) probe(ctx context.Context, p probe) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(ctx)
	result := CheckResult{Status: StatusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		result.Status = StatusDegraded
		if p.required {
			result.Status = StatusUnhealthy
		}
		result.Message = err.Error()
	}
	return result
}

// Overall is the worst status among checks
func Overall(checks map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// RegisterRoutes mounts the probes under /api/health
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/health")
	g.GET("", c.health)
	g.GET("/live", c.live)
	g.GET("/ready", c.readiness)
}

func (c *Checker) live(ctx echo.Context) error {
	return c.respond(ctx, StatusHealthy, nil)
}

func (c *Checker) readiness(ctx echo.Context) error {
	if !c.IsReady() {
		return c.respond(ctx, StatusUnhealthy, map[string]CheckResult{
			"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
		})
	}
	return c.health(ctx)
}

func (c *Checker) health(ctx echo.Context) error {
	checks := c.Run(ctx.Request().Context())
	return c.respond(ctx, Overall(checks), checks)
}

func (c *Checker) respond(ctx echo.Context, status Status, checks map[string]CheckResult) error {
	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, Response{
		Status:     status,
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}
