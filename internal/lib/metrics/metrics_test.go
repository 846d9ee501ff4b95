package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreExposed(t *testing.T) {
	m := New()
	m.RateLimitHits.WithLabelValues("default", "ip", "window").Inc()
	m.WebhookDeliveries.WithLabelValues("github", OutcomeSuccess).Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits.WithLabelValues("default", "ip", "window")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trackr_webhook_deliveries_total{outcome="success",provider="github"} 2`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.GroupsMerged.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.GroupsMerged))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.GroupsMerged))
}
