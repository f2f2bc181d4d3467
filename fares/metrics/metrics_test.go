package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/farebot/fares/tracker"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.SourceAttempt("Silver", errors.New("bad"))
	m.SourceAttempt("Sofia", nil)
	m.SourceServing("Silver")
	m.SourceServing("Sofia")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceAttempts.WithLabelValues("Silver", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceAttempts.WithLabelValues("Sofia", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SourceServing), "only the latest serving source is reported")

	m.ObserveCall("search", "empty", 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchCalls.WithLabelValues("search", "empty")))
	m.BreakerState("open")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerOpen))
	m.BreakerState("closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerOpen))

	m.ReconcileDone(tracker.Summary{Checked: 3, Changed: 1, Empty: 1, Failed: 1}, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileTickets.WithLabelValues("changed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReconcileTickets.WithLabelValues("skipped")))
	m.PriceChanged(tracker.Decreased)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceChanges.WithLabelValues("decreased")))
	m.Tracked(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TrackedTickets))

	m.RegistrationStep("completed")
	m.Dispatch("send", nil)
	m.Dispatch("send", errors.New("429"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationSteps.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendActions.WithLabelValues("send", "fail")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.PriceChanged(tracker.Increased)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `farebot_price_changes_total{direction="increased"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
