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

package routing

import (
	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/prometheus/client_golang/prometheus"
)

type engineCounter struct {
	desc  *prometheus.Desc
	value func(*bacnet.MetricsSnapshot) int64
}

// Collector exports the routing topology and the engine counters to
// Prometheus
type Collector struct {
	service *Service
	metrics *bacnet.Metrics

	routers  *prometheus.Desc
	paths    *prometheus.Desc
	learned  *prometheus.Desc
	counters []engineCounter
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for service. metrics may be nil, in which
// case only the topology is exported.
func NewCollector(service *Service, metrics *bacnet.Metrics) *Collector {
	c := &Collector{
		service: service,
		metrics: metrics,
		routers: prometheus.NewDesc(
			"bacnet_routing_routers",
			"Routers in the router information cache",
			nil, nil,
		),
		paths: prometheus.NewDesc(
			"bacnet_routing_paths",
			"Paths in the router information cache by status",
			[]string{"status"}, nil,
		),
		learned: prometheus.NewDesc(
			"bacnet_routing_learned_networks",
			"Networks learned during this session",
			nil, nil,
		),
	}

	counter := func(name, help string, value func(*bacnet.MetricsSnapshot) int64) {
		c.counters = append(c.counters, engineCounter{
			desc:  prometheus.NewDesc("bacnet_"+name+"_total", help, nil, nil),
			value: value,
		})
	}
	counter("requests_sent", "Requests sent", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsSent })
	counter("requests_failed", "Requests that could not be sent", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsFailed })
	counter("requests_timed_out", "Requests that got no reply in time", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsTimedOut })
	counter("packets_received", "Datagrams received", func(s *bacnet.MetricsSnapshot) int64 { return s.PacketsReceived })
	counter("packets_dropped", "Datagrams that could not be decoded", func(s *bacnet.MetricsSnapshot) int64 { return s.PacketsDropped })
	counter("who_is_sent", "Who-Is requests sent", func(s *bacnet.MetricsSnapshot) int64 { return s.WhoIsSent })
	counter("i_am_received", "I-Am messages received", func(s *bacnet.MetricsSnapshot) int64 { return s.IAmReceived })
	counter("who_is_router_sent", "Who-Is-Router-To-Network requests sent", func(s *bacnet.MetricsSnapshot) int64 { return s.WhoIsRouterSent })
	counter("i_am_router_received", "I-Am-Router-To-Network messages received", func(s *bacnet.MetricsSnapshot) int64 { return s.IAmRouterReceived })
	counter("routing_table_acks", "Initialize-Routing-Table-Ack messages received", func(s *bacnet.MetricsSnapshot) int64 { return s.RoutingTableAcks })
	counter("router_status_updates", "Path status changes caused by router feedback", func(s *bacnet.MetricsSnapshot) int64 { return s.RouterStatusUpdates })
	counter("rejects_to_network", "Reject-Message-To-Network messages received", func(s *bacnet.MetricsSnapshot) int64 { return s.RejectsToNetwork })
	counter("routed_sends", "Requests sent through a known router", func(s *bacnet.MetricsSnapshot) int64 { return s.RoutedSends })

	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.routers
	ch <- c.paths
	ch <- c.learned
	if c.metrics != nil {
		for _, counter := range c.counters {
			ch <- counter.desc
		}
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	routers, paths := c.service.engine.RouterInfoCache().Snapshot()

	ch <- prometheus.MustNewConstMetric(c.routers, prometheus.GaugeValue, float64(len(routers)))

	byStatus := map[bacnet.PathStatus]int{
		bacnet.PathAvailable:    0,
		bacnet.PathBusy:         0,
		bacnet.PathDisconnected: 0,
		bacnet.PathUnreachable:  0,
	}
	for _, p := range paths {
		byStatus[p.Status]++
	}
	for status, n := range byStatus {
		ch <- prometheus.MustNewConstMetric(c.paths, prometheus.GaugeValue, float64(n), status.String())
	}

	ch <- prometheus.MustNewConstMetric(c.learned, prometheus.GaugeValue, float64(c.service.learned.Len()))

	if c.metrics == nil {
		return
	}
	snap := c.metrics.Snapshot()
	for _, counter := range c.counters {
		ch <- prometheus.MustNewConstMetric(counter.desc, prometheus.CounterValue, float64(counter.value(&snap)))
	}
}
