package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupid-simple/rotate/metrics"
	"github.com/stupid-simple/rotate/retention"
	"github.com/stupid-simple/rotate/rotation"
	"github.com/stupid-simple/rotate/tier"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserveOutcomes(t *testing.T) {
	m := metrics.New()
	m.ObserveOutcomes([]rotation.Outcome{
		{Tier: tier.Daily, Status: rotation.StatusCopied, Prune: &retention.Result{
			Deleted: []retention.Deletion{{Path: "a"}, {Path: "b", Err: errors.New("busy")}},
		}},
		{Tier: tier.Weekly, Status: rotation.StatusSkipped},
		{Tier: tier.Monthly, Status: rotation.StatusCopyFailed},
	})

	assert.Equal(t, 1.0, counterValue(t, m.TierCopies.WithLabelValues("daily", "copied")))
	assert.Equal(t, 1.0, counterValue(t, m.TierCopies.WithLabelValues("weekly", "skipped")))
	assert.Equal(t, 1.0, counterValue(t, m.TierCopies.WithLabelValues("monthly", "copy_failed")))
	assert.Equal(t, 1.0, counterValue(t, m.Pruned.WithLabelValues("daily", "deleted")))
	assert.Equal(t, 1.0, counterValue(t, m.Pruned.WithLabelValues("daily", "failed")))
}

func TestRunFinished(t *testing.T) {
	m := metrics.New()
	finished := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	m.RunFinished(finished, 1500*time.Millisecond)

	assert.Equal(t, float64(finished.Unix()), gaugeValue(t, m.LastRun))
	assert.Equal(t, 1.5, gaugeValue(t, m.RunDuration))
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.ProducerFailed("sqlite_copy")
	m.SyncFailed("rsync")

	path := filepath.Join(t.TempDir(), "ssrotate.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `ssrotate_producer_failures_total{producer="sqlite_copy"} 1`)
	assert.Contains(t, string(content), `ssrotate_sync_failures_total{syncer="rsync"} 1`)
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.ProducerFailed("media")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ssrotate_producer_failures_total{producer="media"} 1`)
}
