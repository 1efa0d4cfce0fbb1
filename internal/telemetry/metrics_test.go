package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreScopedToRun(t *testing.T) {
	a := New()
	b := New()

	a.CacheHit()
	a.CacheHit()
	a.CacheMiss()
	a.ObserveRequest("tx_info", 10*time.Millisecond, nil)
	a.ObserveRequest("tx_info", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(a.cacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.upstream.WithLabelValues("tx_info", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheHit()
	m.Event("kind", "matched")
	m.Stage("classify", time.Now())
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteFile("ignored.prom"))
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.Event("staking_reward_claim", "matched")
	m.Warning("rate_unavailable")

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `indigo_poy_events_total{classification="matched",kind="staking_reward_claim"} 1`), text)
	assert.Contains(t, text, "indigo_poy_warnings_total")
}
