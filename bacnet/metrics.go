// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a thread-safe counter
type Counter struct {
	value int64
}

// Add adds a delta to the counter
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	c.Add(1)
}

// Value returns the current counter value
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Reset resets the counter to 0
func (c *Counter) Reset() {
	atomic.StoreInt64(&c.value, 0)
}

// Gauge is a thread-safe gauge that can go up and down
type Gauge struct {
	value int64
}

// Set sets the gauge value
func (g *Gauge) Set(value int64) {
	atomic.StoreInt64(&g.value, value)
}

// Add adds a delta to the gauge
func (g *Gauge) Add(delta int64) {
	atomic.AddInt64(&g.value, delta)
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Value returns the current gauge value
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// LatencyHistogram tracks latency measurements
type LatencyHistogram struct {
	mu      sync.RWMutex
	count   int64
	sum     int64 // nanoseconds
	min     int64
	max     int64
	buckets []int64 // counts for each bucket
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		min:     -1, // Indicates no measurements yet
		buckets: make([]int64, 10), // <1ms, <5ms, <10ms, <25ms, <50ms, <100ms, <250ms, <500ms, <1s, >=1s
	}
}

// Record records a latency measurement
func (h *LatencyHistogram) Record(d time.Duration) {
	ns := d.Nanoseconds()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += ns

	if h.min < 0 || ns < h.min {
		h.min = ns
	}
	if ns > h.max {
		h.max = ns
	}

	// Update bucket
	ms := d.Milliseconds()
	switch {
	case ms < 1:
		h.buckets[0]++
	case ms < 5:
		h.buckets[1]++
	case ms < 10:
		h.buckets[2]++
	case ms < 25:
		h.buckets[3]++
	case ms < 50:
		h.buckets[4]++
	case ms < 100:
		h.buckets[5]++
	case ms < 250:
		h.buckets[6]++
	case ms < 500:
		h.buckets[7]++
	case ms < 1000:
		h.buckets[8]++
	default:
		h.buckets[9]++
	}
}

// Stats returns histogram statistics
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := LatencyStats{
		Count:   h.count,
		Buckets: make([]int64, len(h.buckets)),
	}
	copy(stats.Buckets, h.buckets)

	if h.count > 0 {
		stats.Min = time.Duration(h.min)
		stats.Max = time.Duration(h.max)
		stats.Avg = time.Duration(h.sum / h.count)
	}

	return stats
}

// Reset resets the histogram
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.count = 0
	h.sum = 0
	h.min = -1
	h.max = 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// LatencyStats contains latency statistics
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets []int64
}

// Metrics holds client metrics
type Metrics struct {
	// Connection metrics
	ConnectAttempts  Counter
	ConnectSuccesses Counter
	ConnectFailures  Counter
	Disconnects      Counter

	// Request metrics
	RequestsSent     Counter
	RequestsFailed   Counter
	RequestsTimedOut Counter

	// Inbound traffic
	PacketsReceived Counter
	PacketsDropped  Counter

	// Device discovery
	WhoIsSent         Counter
	IAmReceived       Counter
	DevicesDiscovered Counter

	// Network layer
	WhoIsRouterSent         Counter
	IAmRouterReceived       Counter
	WhatIsNetworkSent       Counter
	NetworkNumberIsReceived Counter
	RoutingTableRequests    Counter
	RoutingTableAcks        Counter
	RouterStatusUpdates     Counter
	RejectsToNetwork        Counter
	RoutedSends             Counter

	// Time from request to first matching reply
	ReplyLatency *LatencyHistogram

	// Bytes
	BytesSent     Counter
	BytesReceived Counter

	// Requests waiting for a reply
	ActiveRequests Gauge

	// Timestamps
	startTime    time.Time
	lastActivity atomic.Int64
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ReplyLatency: NewLatencyHistogram(),
		startTime:    time.Now(),
	}
}

// RecordActivity records the last activity time
func (m *Metrics) RecordActivity() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last activity time
func (m *Metrics) LastActivity() time.Time {
	ns := m.lastActivity.Load()
	if ns == 0 {
		return m.startTime
	}
	return time.Unix(0, ns)
}

// Uptime returns the time since metrics started
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Metrics) counters() []*Counter {
	return []*Counter{
		&m.ConnectAttempts, &m.ConnectSuccesses, &m.ConnectFailures, &m.Disconnects,
		&m.RequestsSent, &m.RequestsFailed, &m.RequestsTimedOut,
		&m.PacketsReceived, &m.PacketsDropped,
		&m.WhoIsSent, &m.IAmReceived, &m.DevicesDiscovered,
		&m.WhoIsRouterSent, &m.IAmRouterReceived, &m.WhatIsNetworkSent, &m.NetworkNumberIsReceived,
		&m.RoutingTableRequests, &m.RoutingTableAcks, &m.RouterStatusUpdates, &m.RejectsToNetwork,
		&m.RoutedSends, &m.BytesSent, &m.BytesReceived,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	for _, c := range m.counters() {
		c.Reset()
	}
	m.ReplyLatency.Reset()
	m.ActiveRequests.Set(0)
	m.startTime = time.Now()
	m.lastActivity.Store(0)
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime: m.Uptime(),

		ConnectAttempts:  m.ConnectAttempts.Value(),
		ConnectSuccesses: m.ConnectSuccesses.Value(),
		ConnectFailures:  m.ConnectFailures.Value(),
		Disconnects:      m.Disconnects.Value(),

		RequestsSent:     m.RequestsSent.Value(),
		RequestsFailed:   m.RequestsFailed.Value(),
		RequestsTimedOut: m.RequestsTimedOut.Value(),

		PacketsReceived: m.PacketsReceived.Value(),
		PacketsDropped:  m.PacketsDropped.Value(),

		WhoIsSent:         m.WhoIsSent.Value(),
		IAmReceived:       m.IAmReceived.Value(),
		DevicesDiscovered: m.DevicesDiscovered.Value(),

		WhoIsRouterSent:         m.WhoIsRouterSent.Value(),
		IAmRouterReceived:       m.IAmRouterReceived.Value(),
		WhatIsNetworkSent:       m.WhatIsNetworkSent.Value(),
		NetworkNumberIsReceived: m.NetworkNumberIsReceived.Value(),
		RoutingTableRequests:    m.RoutingTableRequests.Value(),
		RoutingTableAcks:        m.RoutingTableAcks.Value(),
		RouterStatusUpdates:     m.RouterStatusUpdates.Value(),
		RejectsToNetwork:        m.RejectsToNetwork.Value(),
		RoutedSends:             m.RoutedSends.Value(),

		LatencyStats: m.ReplyLatency.Stats(),

		BytesSent:     m.BytesSent.Value(),
		BytesReceived: m.BytesReceived.Value(),

		ActiveRequests: m.ActiveRequests.Value(),

		LastActivity: m.LastActivity(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Uptime time.Duration

	ConnectAttempts  int64
	ConnectSuccesses int64
	ConnectFailures  int64
	Disconnects      int64

	RequestsSent     int64
	RequestsFailed   int64
	RequestsTimedOut int64

	PacketsReceived int64
	PacketsDropped  int64

	WhoIsSent         int64
	IAmReceived       int64
	DevicesDiscovered int64

	WhoIsRouterSent         int64
	IAmRouterReceived       int64
	WhatIsNetworkSent       int64
	NetworkNumberIsReceived int64
	RoutingTableRequests    int64
	RoutingTableAcks        int64
	RouterStatusUpdates     int64
	RejectsToNetwork        int64
	RoutedSends             int64

	LatencyStats LatencyStats

	BytesSent     int64
	BytesReceived int64

	ActiveRequests int64

	LastActivity time.Time
}
