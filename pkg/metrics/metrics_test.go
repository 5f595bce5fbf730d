package metrics_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/enrollsync/pkg/metrics"
)

func TestCounters(t *testing.T) {
	m := metrics.New()

	m.Record("exact", "ledger", "insert")
	m.Records("exact", "ledger", "insert", 2)
	m.Records("exact", "ledger", "update", 0)
	m.Event("fuzzy", "完了")
	m.ChunkError("ledger", "create")
	m.StageError("transcribe")

	count, err := testutil.GatherAndCount(m.Registry(), "enrollsync_records_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	// four labelled series plus two gauges
	assert.Equal(t, 6, count)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Record("exact", "ledger", "insert")
		m.Event("fuzzy", "完了")
		m.ChunkError("ledger", "update")
		m.StageError("exact")
		m.Finish(time.Now(), time.Now())
	})
	assert.NoError(t, m.WriteTextfile("ignored.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.Records("transcribe", "events", "transcribed", 3)
	started := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	m.Finish(started, started.Add(90*time.Second))

	path := filepath.Join(t.TempDir(), "textfile", "enrollsync.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `enrollsync_records_total{action="transcribed",stage="transcribe",target="events"} 3`)
	assert.Contains(t, out, "enrollsync_run_duration_seconds 90")
}
