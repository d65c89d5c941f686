// File: stats/varz_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
)

func TestVarzCountAndGauge(t *testing.T) {
	c := NewVarzCount("test_count")
	defer Unregister("test_count")
	g := NewVarzGauge("test_gauge")
	defer Unregister("test_gauge")

	c.Inc()
	c.Add(4)
	require.Equal(t, int64(5), c.Get())

	g.Inc()
	g.Inc()
	g.Dec()
	require.Equal(t, int64(1), g.Get())
	g.Set(10)
	require.Equal(t, int64(10), g.Get())
}

func TestSnapshotIsValidJSON(t *testing.T) {
	c := NewVarzCount("snap_count")
	defer Unregister("snap_count")
	c.Add(3)

	data, err := Snapshot()
	require.NoError(t, err)

	var m map[string]float64
	require.NoError(t, sonnet.Unmarshal(data, &m))
	require.Equal(t, float64(3), m["snap_count"])
}

func TestVarzQpsExcludesCurrentSecond(t *testing.T) {
	q := NewVarzQps("test_qps")
	defer Unregister("test_qps")

	q.Inc()
	q.Inc()
	// The window averages whole seconds, so the rate never exceeds what
	// was recorded and is usually zero until the second completes.
	require.LessOrEqual(t, q.Get(), float64(2))
	require.GreaterOrEqual(t, q.Get(), float64(0))
}
