// File: stats/varz.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-local counters exported over a named registry. Variables
// are cheap to bump from any unit; readers get a point-in-time value.

package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// Var is a named statistic that can report its current value.
type Var interface {
	Name() string
	Value() float64
}

// VarzCount is a monotonically growing event counter.
type VarzCount struct {
	name string
	n    atomic.Int64
}

func NewVarzCount(name string) *VarzCount {
	v := &VarzCount{name: name}
	Register(v)
	return v
}

func (v *VarzCount) Name() string   { return v.name }
func (v *VarzCount) Inc()           { v.n.Add(1) }
func (v *VarzCount) Add(d int64)    { v.n.Add(d) }
func (v *VarzCount) Get() int64     { return v.n.Load() }
func (v *VarzCount) Value() float64 { return float64(v.n.Load()) }

// VarzGauge holds an instantaneous level, such as live connections.
type VarzGauge struct {
	name string
	n    atomic.Int64
}

func NewVarzGauge(name string) *VarzGauge {
	v := &VarzGauge{name: name}
	Register(v)
	return v
}

func (v *VarzGauge) Name() string   { return v.name }
func (v *VarzGauge) Inc()           { v.n.Add(1) }
func (v *VarzGauge) Dec()           { v.n.Add(-1) }
func (v *VarzGauge) Set(n int64)    { v.n.Store(n) }
func (v *VarzGauge) Get() int64     { return v.n.Load() }
func (v *VarzGauge) Value() float64 { return float64(v.n.Load()) }

const qpsWindow = 5

type qpsSlot struct {
	ts    atomic.Int64
	count atomic.Int64
}

// VarzQps reports events per second averaged over a sliding window of
// whole seconds. The current, still-filling second is excluded.
type VarzQps struct {
	name  string
	slots [qpsWindow + 2]qpsSlot
}

func NewVarzQps(name string) *VarzQps {
	v := &VarzQps{name: name}
	Register(v)
	return v
}

func (v *VarzQps) Name() string { return v.name }

func (v *VarzQps) Inc() {
	ts := time.Now().Unix()
	s := &v.slots[ts%int64(len(v.slots))]
	if old := s.ts.Load(); old != ts {
		if s.ts.CompareAndSwap(old, ts) {
			s.count.Store(0)
		}
	}
	s.count.Add(1)
}

// Get returns the average rate over the last qpsWindow complete seconds.
func (v *VarzQps) Get() float64 {
	now := time.Now().Unix()
	var sum int64
	for i := range v.slots {
		ts := v.slots[i].ts.Load()
		if ts >= now-qpsWindow && ts < now {
			sum += v.slots[i].count.Load()
		}
	}
	return float64(sum) / qpsWindow
}

func (v *VarzQps) Value() float64 { return v.Get() }

var (
	regMu sync.Mutex
	reg   = map[string]Var{}
)

// Register adds a variable to the process registry. Re-registering a
// name replaces the previous variable.
func Register(v Var) {
	regMu.Lock()
	reg[v.Name()] = v
	regMu.Unlock()
}

// Unregister removes a variable, typically in tests.
func Unregister(name string) {
	regMu.Lock()
	delete(reg, name)
	regMu.Unlock()
}

// Snapshot serializes all registered variables to JSON.
func Snapshot() ([]byte, error) {
	regMu.Lock()
	m := make(map[string]float64, len(reg))
	for name, v := range reg {
		m[name] = v.Value()
	}
	regMu.Unlock()
	return sonnet.Marshal(m)
}
