// Package feature isolates optional analyzers behind an error-tracking
// manager so a failing analyzer degrades to its fallback value instead of
// taking the trading loop down.
package feature

import (
	"sync"
	"time"

	"krait/logging"
)

// Well-known feature names registered by the strategy engine.
const (
	AdaptiveThresholds = "adaptive_thresholds"
	MultiTimeframe     = "multi_timeframe"
	VolumeProfile      = "volume_profile"
	MLPrediction       = "ml_prediction"
	PortfolioMgmt      = "portfolio_management"
	AdvancedExits      = "advanced_exits"
	RegimeDetection    = "regime_detection"
)

// Status tracks the health of a registered feature.
type Status struct {
	Name            string
	Enabled         bool
	ErrorCount      int
	LastErrorTime   time.Time
	LastErrorMsg    string
	TotalCalls      int
	SuccessfulCalls int
	AutoDisable     bool
}

// SuccessRate returns successful/total calls, or 1 before the first call.
func (s Status) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 1.0
	}
	return float64(s.SuccessfulCalls) / float64(s.TotalCalls)
}

// Manager wraps feature calls with error isolation. A feature that fails
// MaxErrors times within ErrorWindow is disabled automatically unless it was
// registered as critical (auto-disable off).
type Manager struct {
	mu       sync.Mutex
	features map[string]*Status
	log      *logging.Logger

	maxErrors int
	window    time.Duration
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLimits overrides the error budget.
func WithLimits(maxErrors int, window time.Duration) Option {
	return func(m *Manager) {
		m.maxErrors = maxErrors
		m.window = window
	}
}

// NewManager creates a Manager with the default budget of 3 errors per
// 5-minute window.
func NewManager(log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		features:  make(map[string]*Status),
		log:       log,
		maxErrors: 3,
		window:    5 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a feature for tracking. Critical features should pass
// autoDisable=false: their errors are counted and logged but they stay
// enabled.
func (m *Manager) Register(name string, enabled, autoDisable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.features[name] = &Status{
		Name:        name,
		Enabled:     enabled,
		AutoDisable: autoDisable,
	}
	m.log.Infof("feature registered: %s (enabled=%v, auto_disable=%v)", name, enabled, autoDisable)
}

// Enabled reports whether a feature is registered and currently enabled.
func (m *Manager) Enabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.features[name]
	return ok && f.Enabled
}

// Execute runs fn under error isolation and returns its result, or fallback
// when the feature is unregistered, disabled, or fn returns an error.
func Execute[T any](m *Manager, name string, fallback T, fn func() (T, error)) T {
	m.mu.Lock()
	f, ok := m.features[name]
	if !ok {
		m.mu.Unlock()
		m.log.Warnf("feature not registered: %s", name)
		return fallback
	}
	if !f.Enabled {
		m.mu.Unlock()
		m.log.Debugf("feature disabled, skipping: %s", name)
		return fallback
	}
	f.TotalCalls++
	m.mu.Unlock()

	// fn runs outside the lock; analyzers may take a while.
	result, err := fn()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if err == nil {
		f.SuccessfulCalls++
		if now.Sub(f.LastErrorTime) > m.window {
			f.ErrorCount = 0
		}
		return result
	}

	m.log.Errorf("feature %s: %v", name, err)

	if now.Sub(f.LastErrorTime) > m.window {
		f.ErrorCount = 0
	}
	f.ErrorCount++
	f.LastErrorTime = now
	f.LastErrorMsg = err.Error()

	if f.ErrorCount >= m.maxErrors {
		if f.AutoDisable {
			f.Enabled = false
			m.log.Errorf("feature %s disabled after %d errors within %s (last: %s)",
				name, f.ErrorCount, m.window, f.LastErrorMsg)
			m.log.Errorf("feature %s summary: calls=%d ok=%d success_rate=%.1f%%",
				name, f.TotalCalls, f.SuccessfulCalls, f.SuccessRate()*100)
		} else {
			m.log.Warnf("feature %s has %d errors within %s but is critical, staying enabled (last: %s)",
				name, f.ErrorCount, m.window, f.LastErrorMsg)
		}
	}

	return fallback
}

// Disable manually disables a feature.
func (m *Manager) Disable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.features[name]; ok {
		f.Enabled = false
		m.log.Infof("feature manually disabled: %s", name)
	}
}

// Enable manually re-enables a feature and clears its error count.
func (m *Manager) Enable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.features[name]; ok {
		f.Enabled = true
		f.ErrorCount = 0
		m.log.Infof("feature manually enabled: %s", name)
	}
}

// ResetErrors clears the error state of a feature without touching its
// enabled flag.
func (m *Manager) ResetErrors(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.features[name]; ok {
		f.ErrorCount = 0
		f.LastErrorTime = time.Time{}
		f.LastErrorMsg = ""
	}
}

// StatusOf returns a copy of a feature's status.
func (m *Manager) StatusOf(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.features[name]
	if !ok {
		return Status{}, false
	}
	return *f, true
}

// EnabledFeatures lists the names of all enabled features.
func (m *Manager) EnabledFeatures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for name, f := range m.features {
		if f.Enabled {
			out = append(out, name)
		}
	}
	return out
}

// DisabledFeatures lists the names of all disabled features.
func (m *Manager) DisabledFeatures() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for name, f := range m.features {
		if !f.Enabled {
			out = append(out, name)
		}
	}
	return out
}
