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
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func TestCollectorTopology(t *testing.T) {
	engine := newFakeEngine()
	r := bacnet.MustParseAddress("192.168.1.20")
	engine.cache.UpdateRouterReferences(0, r, []uint16{10, 11})
	engine.cache.SetPathInfo(0, 10, r, bacnet.PathAvailable)
	engine.cache.SetPathInfo(0, 11, r, bacnet.PathBusy)

	s := newTestService(engine)
	s.LearnedNetworks().Add(10, 11)

	expected := `
# HELP bacnet_routing_learned_networks Networks learned during this session
# TYPE bacnet_routing_learned_networks gauge
bacnet_routing_learned_networks 2
# HELP bacnet_routing_paths Paths in the router information cache by status
# TYPE bacnet_routing_paths gauge
bacnet_routing_paths{status="available"} 1
bacnet_routing_paths{status="busy"} 1
bacnet_routing_paths{status="disconnected"} 0
bacnet_routing_paths{status="unreachable"} 0
# HELP bacnet_routing_routers Routers in the router information cache
# TYPE bacnet_routing_routers gauge
bacnet_routing_routers 1
`
	err := testutil.CollectAndCompare(NewCollector(s, nil), strings.NewReader(expected))
	assert.NoError(t, err)
}

func TestCollectorEngineCounters(t *testing.T) {
	metrics := bacnet.NewMetrics()
	metrics.RoutedSends.Add(3)
	metrics.WhoIsRouterSent.Inc()

	c := NewCollector(newTestService(newFakeEngine()), metrics)
	assert.Equal(t, 19, testutil.CollectAndCount(c))

	expected := `
# HELP bacnet_routed_sends_total Requests sent through a known router
# TYPE bacnet_routed_sends_total counter
bacnet_routed_sends_total 3
# HELP bacnet_who_is_router_sent_total Who-Is-Router-To-Network requests sent
# TYPE bacnet_who_is_router_sent_total counter
bacnet_who_is_router_sent_total 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"bacnet_routed_sends_total", "bacnet_who_is_router_sent_total")
	assert.NoError(t, err)
}

func TestCollectorRegisters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(newTestService(newFakeEngine()), bacnet.NewMetrics())))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 16)
}
