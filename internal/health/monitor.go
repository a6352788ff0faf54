package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ncecere/speech_analysis/backend/internal/config"
	"github.com/ncecere/speech_analysis/backend/internal/logging"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Status is the last observed state of one check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report summarises all checks for /healthz.
type Report struct {
	Status string   `json:"status"`
	Checks []Status `json:"checks"`
}

// Monitor periodically probes the vendor services and Redis and keeps the latest results.
type Monitor struct {
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	checks    map[string]CheckFunc
	mu        sync.RWMutex
	results   map[string]Status
	startOnce sync.Once
	now       func() time.Time
}

// NewMonitor constructs a monitor using the health configuration.
func NewMonitor(cfg config.HealthConfig, logger *zap.Logger) *Monitor {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > interval {
		timeout = 5 * time.Second
	}

	return &Monitor{
		interval: interval,
		timeout:  timeout,
		logger:   logging.OrNop(logger),
		checks:   make(map[string]CheckFunc),
		results:  make(map[string]Status),
		now:      time.Now,
	}
}

// Register adds a named check. It must be called before Start.
func (m *Monitor) Register(name string, check CheckFunc) {
	if check == nil {
		return
	}
	m.checks[name] = check
}

// Start begins the monitoring loop until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	if len(m.checks) == 0 {
		return
	}
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial sweep
	m.CheckNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow runs every check concurrently and records the results.
func (m *Monitor) CheckNow(ctx context.Context) {
	var wg sync.WaitGroup
	for name, check := range m.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			status := Status{Name: name, Healthy: true, CheckedAt: m.now().UTC()}
			if err := check(timeoutCtx); err != nil {
				status.Healthy = false
				status.Error = err.Error()
				m.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			}
			m.mu.Lock()
			m.results[name] = status
			m.mu.Unlock()
		}(name, check)
	}
	wg.Wait()
}

// Report returns the latest results sorted by name. Checks that have not run yet are omitted.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{Status: "ok", Checks: make([]Status, 0, len(m.results))}
	for _, status := range m.results {
		if !status.Healthy {
			report.Status = "degraded"
		}
		report.Checks = append(report.Checks, status)
	}
	sort.Slice(report.Checks, func(i, j int) bool {
		return report.Checks[i].Name < report.Checks[j].Name
	})
	return report
}
