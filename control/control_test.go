// File: control/control_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/fibrio/stats"
)

func TestVarzEndpoint(t *testing.T) {
	c := stats.NewVarzCount("control_test_count")
	defer stats.Unregister("control_test_count")
	c.Add(7)

	ts := httptest.NewServer(NewHandler("fibrio_test_"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/varz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var m map[string]float64
	require.NoError(t, sonnet.Unmarshal(body, &m))
	require.Equal(t, float64(7), m["control_test_count"])
}

func TestMetricsEndpoint(t *testing.T) {
	c := stats.NewVarzCount("control_metrics_count")
	defer stats.Unregister("control_metrics_count")
	c.Inc()

	ts := httptest.NewServer(NewHandler("fibrio_test_"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "fibrio_test_control_metrics_count")
}
