package vaultauth

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricLoginSuccess is incremented on every successful Login.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is incremented on credential rejection.
	MetricLoginFailure
	// MetricLoginRateLimited is incremented when the login limiter denies.
	MetricLoginRateLimited
	// MetricTokenPairIssued counts token pairs from login and rotation.
	MetricTokenPairIssued
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts reuse events; each one also revokes
	// a family.
	MetricRefreshReuseDetected
	// MetricFamilyRevoked counts family revocations from any cause.
	MetricFamilyRevoked
	// MetricFamiliesSwept counts expired families removed by cleanup.
	MetricFamiliesSwept
	// MetricMFASetup counts provisioned (not yet confirmed) secrets.
	MetricMFASetup
	// MetricMFAEnabled counts setup confirmations.
	MetricMFAEnabled
	// MetricMFADisabled counts user-initiated disables.
	MetricMFADisabled
	// MetricMFAReset counts admin resets.
	MetricMFAReset
	// MetricMFASuccess counts accepted second-factor codes.
	MetricMFASuccess
	// MetricMFAFailure counts rejected second-factor codes.
	MetricMFAFailure
	// MetricMFARateLimited counts attempts denied by the MFA limiter.
	MetricMFARateLimited
	// MetricMFAReplayBlocked counts valid TOTP codes rejected as replays.
	MetricMFAReplayBlocked
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed counts rejected backup codes.
	MetricBackupCodeFailed
	// MetricBackupCodesRegenerated counts batch regenerations.
	MetricBackupCodesRegenerated
	// MetricBackupCodesExhausted counts logins that consumed the last code.
	MetricBackupCodesExhausted
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. When disabled, all operations are
// no-ops.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a Metrics instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc atomically increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
