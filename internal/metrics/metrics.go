package metrics

import "sync/atomic"

// MetricID indexes one counter slot.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricSignupSuccess
	MetricSignupDuplicate
	MetricVerificationRequested
	MetricVerificationConfirmed
	MetricVerificationReplay
	MetricRateLimitHit
	MetricAccessValidateSuccess
	MetricAccessValidateFailure

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:          "login_success",
	MetricLoginFailure:          "login_failure",
	MetricLoginRateLimited:      "login_rate_limited",
	MetricRefreshSuccess:        "refresh_success",
	MetricRefreshFailure:        "refresh_failure",
	MetricRefreshReuseDetected:  "refresh_reuse_detected",
	MetricLogout:                "logout",
	MetricSignupSuccess:         "signup_success",
	MetricSignupDuplicate:       "signup_duplicate",
	MetricVerificationRequested: "verification_requested",
	MetricVerificationConfirmed: "verification_confirmed",
	MetricVerificationReplay:    "verification_replay",
	MetricRateLimitHit:          "rate_limit_hit",
	MetricAccessValidateSuccess: "access_validate_success",
	MetricAccessValidateFailure: "access_validate_failure",
}

// String returns the stable snake_case name of the metric.
func (id MetricID) String() string {
	if id < 0 || id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// paddedCounter keeps each counter on its own cache line so hot counters do
// not false-share under concurrent increments.
type paddedCounter struct {
	value uint64
	_     [56]byte
}

// Metrics holds one atomic counter per [MetricID]. A nil *Metrics is a valid
// disabled instance.
type Metrics struct {
	counters [metricIDCount]paddedCounter
}

// New returns an enabled Metrics instance, or nil when disabled.
func New(enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	return &Metrics{}
}

// Inc adds one to the counter. No-op on a nil receiver or unknown id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id < 0 || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Snapshot is a point-in-time copy of all counters keyed by metric name.
type Snapshot struct {
	Counters map[string]uint64
}

// Snapshot deep-copies the current counter values. Counters are read
// individually, so a snapshot taken under load is per-counter accurate but
// not a single atomic cut across all of them.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[string]uint64, metricIDCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id.String()] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
