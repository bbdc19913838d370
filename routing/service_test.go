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
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func TestUseRouterRegistersNetworks(t *testing.T) {
	engine := newFakeEngine()
	engine.setAlive("2:5")
	s := newTestService(engine)

	err := s.UseRouter(context.Background(), RouterConfig{Address: "2:5", Networks: []uint16{10, 11}})
	require.NoError(t, err)

	router := bacnet.MustParseAddress("2:5")
	dnets, ok := engine.cache.RouterDNets(0, router)
	require.True(t, ok)
	assert.Subset(t, dnets, []uint16{10, 11})

	for _, d := range []uint16{10, 11} {
		info, ok := engine.cache.PathInfo(0, d)
		require.True(t, ok)
		assert.True(t, info.Address.Equal(router))
		assert.Equal(t, bacnet.PathAvailable, info.Status)
		assert.True(t, s.LearnedNetworks().Contains(d))
	}

	table, err := s.RoutingTable()
	require.NoError(t, err)
	require.Contains(t, table, "2:5")
	record := table["2:5"]
	assert.Equal(t, uint16(0), record.SourceNetwork)
	assert.Equal(t, []uint16{10, 11}, record.DestinationNetworks)
	assert.Equal(t, []PathObservation{
		{Path: bacnet.PathKey{SNet: 0, DNet: 10}, Status: bacnet.PathAvailable},
		{Path: bacnet.PathKey{SNet: 0, DNet: 11}, Status: bacnet.PathAvailable},
	}, record.Paths)

	assert.Equal(t, []uint16{10, 11}, s.KnownNetworks())
}

func TestUseRouterSourceNetwork(t *testing.T) {
	engine := newFakeEngine()
	engine.setAlive("192.168.1.20")
	s := newTestService(engine)

	err := s.UseRouter(context.Background(), RouterConfig{Address: "192.168.1.20", Networks: []uint16{30}, SourceNetwork: 4})
	require.NoError(t, err)

	_, ok := engine.cache.PathInfo(0, 30)
	assert.False(t, ok)
	info, ok := engine.cache.PathInfo(4, 30)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.20", info.Address.String())

	probe := engine.whoIsCalls[0]
	require.NotNil(t, probe.Target)
	assert.Equal(t, "192.168.1.20", probe.Target.String())
}

func TestUseRouterProbeFailureIsNoop(t *testing.T) {
	engine := newFakeEngine()
	s := newTestService(engine, WithProbeTimeout(10*time.Millisecond))

	err := s.UseRouter(context.Background(), RouterConfig{Address: "2:5", Networks: []uint16{10, 11}})
	require.NoError(t, err)

	routers, paths := engine.cache.Snapshot()
	assert.Empty(t, routers)
	assert.Empty(t, paths)
	assert.Equal(t, 0, s.LearnedNetworks().Len())
	assert.Equal(t, 0, engine.updateCalls)
	assert.Equal(t, 1, engine.probes())
	assert.Equal(t, 10*time.Millisecond, engine.whoIsCalls[0].Timeout)
}

func TestUseRouterIdempotent(t *testing.T) {
	cfg := RouterConfig{Address: "2:5", Networks: []uint16{10, 11}}

	once := newFakeEngine()
	once.setAlive("2:5")
	s1 := newTestService(once)
	require.NoError(t, s1.UseRouter(context.Background(), cfg))

	twice := newFakeEngine()
	twice.setAlive("2:5")
	s2 := newTestService(twice)
	require.NoError(t, s2.UseRouter(context.Background(), cfg))
	require.NoError(t, s2.UseRouter(context.Background(), cfg))

	r1, p1 := once.cache.Snapshot()
	r2, p2 := twice.cache.Snapshot()
	assert.Equal(t, r1, r2)
	assert.Equal(t, p1, p2)
	assert.Equal(t, s1.KnownNetworks(), s2.KnownNetworks())
}

func TestUseRouterInvalidInput(t *testing.T) {
	engine := newFakeEngine()
	s := newTestService(engine)

	for _, cfg := range []RouterConfig{
		{Address: "not-an-address", Networks: []uint16{10}},
		{Address: "2:*", Networks: []uint16{10}},
		{Address: "*", Networks: []uint16{10}},
	} {
		err := s.UseRouter(context.Background(), cfg)
		assert.True(t, bacnet.IsInvalidAddress(err), cfg.Address)
	}

	err := s.UseRouter(context.Background(), RouterConfig{Address: "2:5", Networks: []uint16{10, 0}})
	assert.ErrorIs(t, err, ErrInvalidNetwork)
	err = s.UseRouter(context.Background(), RouterConfig{Address: "2:5", Networks: []uint16{bacnet.GlobalNetwork}})
	assert.ErrorIs(t, err, ErrInvalidNetwork)

	assert.Equal(t, 0, engine.probes(), "no I/O for invalid input")
}

func TestUseRouters(t *testing.T) {
	engine := newFakeEngine()
	engine.setAlive("2:5")
	s := newTestService(engine)

	err := s.UseRouters(context.Background(), []RouterConfig{
		{Address: "bogus", Networks: []uint16{1}},
		{Address: "2:5", Networks: []uint16{10}},
		{Address: "3:*", Networks: []uint16{20}},
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
	assert.True(t, s.LearnedNetworks().Contains(10))

	assert.NoError(t, s.UseRouters(context.Background(), nil))
}

func TestUseRouterConcurrent(t *testing.T) {
	engine := newFakeEngine()
	s := newTestService(engine)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		addr := fmt.Sprintf("2:%d", i)
		engine.setAlive(addr)
		wg.Add(1)
		go func(addr string, dnet uint16) {
			defer wg.Done()
			assert.NoError(t, s.UseRouter(context.Background(), RouterConfig{Address: addr, Networks: []uint16{dnet}}))
		}(addr, uint16(100+i))
	}
	wg.Wait()

	table, err := s.RoutingTable()
	require.NoError(t, err)
	assert.Len(t, table, 20)
	assert.Equal(t, 20, s.LearnedNetworks().Len())
}

func TestWhoIsRouterToNetworkTimeout(t *testing.T) {
	s := newTestService(newFakeEngine())

	start := time.Now()
	networks, err := s.WhoIsRouterToNetwork(context.Background(), WithNetwork(99), WithTimeout(time.Second))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.NotNil(t, networks)
	assert.Empty(t, networks)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestWhoIsRouterToNetworkDestination(t *testing.T) {
	engine := newFakeEngine()
	engine.whoIsRouter = func(dest *bacnet.Address, network uint16) ([]uint16, error) {
		return []uint16{network, 12}, nil
	}
	s := newTestService(engine)

	networks, err := s.WhoIsRouterToNetwork(context.Background(), WithNetwork(10))
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 12}, networks)

	_, err = s.WhoIsRouterToNetwork(context.Background(), WithGlobalBroadcast())
	require.NoError(t, err)

	_, err = s.WhoIsRouterToNetwork(context.Background(), WithDestination(bacnet.MustParseAddress("10.0.0.1")))
	require.NoError(t, err)

	require.Len(t, engine.whoIsRouterDests, 3)
	assert.Nil(t, engine.whoIsRouterDests[0])
	assert.Equal(t, bacnet.AddressGlobalBroadcast, engine.whoIsRouterDests[1].Type)
	assert.Equal(t, "10.0.0.1", engine.whoIsRouterDests[2].String())

	// Discovery alone does not touch the cache
	routers, paths := engine.cache.Snapshot()
	assert.Empty(t, routers)
	assert.Empty(t, paths)
}

func TestWhoIsRouterToNetworkDestinationOverridesGlobal(t *testing.T) {
	engine := newFakeEngine()
	engine.whoIsRouter = func(dest *bacnet.Address, network uint16) ([]uint16, error) {
		return []uint16{10}, nil
	}
	s := newTestService(engine)

	_, err := s.WhoIsRouterToNetwork(context.Background(),
		WithDestination(bacnet.MustParseAddress("10.0.0.1")),
		WithGlobalBroadcast(),
	)
	require.NoError(t, err)

	_, err = s.WhoIsRouterToNetwork(context.Background(),
		WithGlobalBroadcast(),
		WithDestination(bacnet.MustParseAddress("10.0.0.2")),
	)
	require.NoError(t, err)

	require.Len(t, engine.whoIsRouterDests, 2)
	assert.Equal(t, "10.0.0.1", engine.whoIsRouterDests[0].String())
	assert.Equal(t, "10.0.0.2", engine.whoIsRouterDests[1].String())
}

func TestRoutingTableAfterRouterTakesOverNetwork(t *testing.T) {
	engine := newFakeEngine()
	engine.setAlive("192.168.1.30")
	s := newTestService(engine)

	err := s.UseRouter(context.Background(), RouterConfig{Address: "192.168.1.30", Networks: []uint16{10, 11}})
	require.NoError(t, err)

	// A routing table ack from another router claims network 10
	other := bacnet.MustParseAddress("192.168.1.20")
	require.NoError(t, engine.UpdateRouterReferences(0, other, []uint16{10}))

	table, err := s.RoutingTable()
	require.NoError(t, err)
	require.Contains(t, table, "192.168.1.30")
	require.Contains(t, table, "192.168.1.20")

	for addr, record := range table {
		for _, p := range record.Paths {
			assert.Contains(t, record.DestinationNetworks, p.Path.DNet, "router %s", addr)
		}
	}

	assert.Equal(t, []uint16{11}, table["192.168.1.30"].DestinationNetworks)
	assert.Equal(t, []PathObservation{
		{Path: bacnet.PathKey{SNet: 0, DNet: 10}, Status: bacnet.PathAvailable},
	}, table["192.168.1.20"].Paths)

	route, ok := engine.cache.RouterFor(10)
	require.True(t, ok)
	assert.True(t, route.Address.Equal(other))
}

func TestWhoIsRouterToNetworkEngineError(t *testing.T) {
	engine := newFakeEngine()
	engine.whoIsRouter = func(dest *bacnet.Address, network uint16) ([]uint16, error) {
		return nil, bacnet.ErrNotConnected
	}
	s := newTestService(engine)

	_, err := s.WhoIsRouterToNetwork(context.Background())
	assert.ErrorIs(t, err, bacnet.ErrNotConnected)
}

func TestWhatIsNetworkNumber(t *testing.T) {
	engine := newFakeEngine()
	s := newTestService(engine)

	network, err := s.WhatIsNetworkNumber(context.Background(), WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), network)

	engine.whatIs = func(dest *bacnet.Address) (uint16, error) { return 7, nil }
	network, err = s.WhatIsNetworkNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(7), network)
}

func TestInitRoutingTable(t *testing.T) {
	engine := newFakeEngine()
	s := newTestService(engine)

	require.NoError(t, s.InitRoutingTable(context.Background(), nil))
	router := bacnet.MustParseAddress("192.168.1.20")
	require.NoError(t, s.InitRoutingTable(context.Background(), &router))

	require.Len(t, engine.irtDests, 2)
	assert.Nil(t, engine.irtDests[0])
	assert.Equal(t, "192.168.1.20", engine.irtDests[1].String())
}

func TestResetLearnedNetworks(t *testing.T) {
	learned := NewLearnedNetworks()
	learned.Add(3, 1, 2, 1)
	s := newTestService(newFakeEngine(), WithLearnedNetworks(learned))

	assert.Equal(t, []uint16{1, 2, 3}, s.KnownNetworks())
	s.ResetLearnedNetworks()
	assert.Empty(t, s.KnownNetworks())
	assert.Equal(t, 0, learned.Len())
}
