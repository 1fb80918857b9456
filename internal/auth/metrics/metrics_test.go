package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Login("success")
	m.Login("success")
	m.Login("invalid_credentials")
	m.Refresh("ok")
	m.MFA("verify", "invalid_otp")
	m.RateLimited("strict")
	m.Housekeeping("refresh_tokens", 3)
	m.Housekeeping("audit_logs", 0)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Logins.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("invalid_credentials")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.MFAEvents.WithLabelValues("verify", "invalid_otp")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejected.WithLabelValues("strict")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.HousekeepingRows.WithLabelValues("refresh_tokens")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.HousekeepingRows.WithLabelValues("audit_logs")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Positive(t, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.Login("success")
		m.Refresh("ok")
		m.MFA("start", "ok")
		m.RateLimited("strict")
		m.Housekeeping("refresh_tokens", 1)
	})
}

func TestNewWithoutRegistry(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.Login("success")
	require.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("success")))
}
