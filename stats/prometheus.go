// File: stats/prometheus.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stats

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the varz registry as untyped Prometheus metrics.
// Register it with prometheus.MustRegister to serve the registry over
// an existing /metrics endpoint.
type Collector struct {
	prefix string
}

func NewCollector(prefix string) *Collector {
	return &Collector{prefix: prefix}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	// Unchecked collector: descriptors depend on the live registry.
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	regMu.Lock()
	vars := make([]Var, 0, len(reg))
	for _, v := range reg {
		vars = append(vars, v)
	}
	regMu.Unlock()

	for _, v := range vars {
		name := c.prefix + sanitize(v.Name())
		desc := prometheus.NewDesc(name, "varz "+v.Name(), nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.UntypedValue, v.Value())
	}
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
