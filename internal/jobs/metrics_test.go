package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerEndRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("backup:snapshot").End(nil))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("backup:snapshot", "success")))

	boom := errors.New("export failed")
	require.ErrorIs(t, m.Track("backup:snapshot").End(boom), boom)
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("backup:snapshot", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("backup:snapshot")))
}

func TestTrackerEndNilSafe(t *testing.T) {
	var tr *Tracker
	boom := errors.New("still surfaced")
	require.ErrorIs(t, tr.End(boom), boom)
}

func TestAddSnapshotLabelsReason(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSnapshot("commit")
	m.AddSnapshot("")
	require.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("commit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("unknown")))
}
