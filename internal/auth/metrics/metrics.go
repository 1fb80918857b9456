package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tenantadmin"

// Metrics holds the auth collectors. A nil *Metrics is valid and records
// nothing, so services and tests can leave it unset.
type Metrics struct {
	Logins            *prometheus.CounterVec
	Refreshes         *prometheus.CounterVec
	MFAEvents         *prometheus.CounterVec
	RateLimitRejected *prometheus.CounterVec
	HousekeepingRows  *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "logins_total", Help: "Password logins by result."},
			[]string{"result"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "token_refreshes_total", Help: "Access token refreshes by result."},
			[]string{"result"},
		),
		MFAEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "mfa_events_total", Help: "MFA operations by event and result."},
			[]string{"event", "result"},
		),
		RateLimitRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Requests rejected by a rate limit profile."},
			[]string{"profile"},
		),
		HousekeepingRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "housekeeping_deleted_total", Help: "Rows removed by the housekeeping worker."},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Logins, m.Refreshes, m.MFAEvents, m.RateLimitRejected, m.HousekeepingRows)
	}
	return m
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) MFA(event, result string) {
	if m == nil {
		return
	}
	m.MFAEvents.WithLabelValues(event, result).Inc()
}

func (m *Metrics) RateLimited(profile string) {
	if m == nil {
		return
	}
	m.RateLimitRejected.WithLabelValues(profile).Inc()
}

func (m *Metrics) Housekeeping(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.HousekeepingRows.WithLabelValues(kind).Add(float64(n))
}
