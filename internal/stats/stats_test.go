package stats

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	assert.NotNil(t, su.stop, "expected stop channel to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	su.Stop()

	// updates after Stop are dropped rather than panicking, and Stop is
	// idempotent
	su.RegisterMetric("LateMetric")
	assert.NotPanics(t, func() {
		su.Incr("LateMetric")
		su.Decr("LateMetric")
		su.Stop()
	}, "expected updates after Stop to be dropped")
}
