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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func TestRoutingTableIsPure(t *testing.T) {
	engine := newFakeEngine()
	r := bacnet.MustParseAddress("10.0.0.1")
	engine.cache.UpdateRouterReferences(0, r, []uint16{10, 11})
	engine.cache.SetPathInfo(0, 10, r, bacnet.PathAvailable)
	engine.cache.SetPathInfo(0, 11, r, bacnet.PathBusy)
	s := newTestService(engine)

	first, err := s.RoutingTable()
	require.NoError(t, err)
	second, err := s.RoutingTable()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Records are rebuilt, not shared between calls
	first["10.0.0.1"].Paths[0].Status = bacnet.PathUnreachable
	third, err := s.RoutingTable()
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestRoutingTableInconsistentCache(t *testing.T) {
	engine := newFakeEngine()
	engine.cache.UpdateRouterReferences(0, bacnet.MustParseAddress("2:5"), []uint16{10})
	engine.cache.SetPathInfo(0, 10, bacnet.MustParseAddress("2:5"), bacnet.PathAvailable)
	engine.cache.SetPathInfo(0, 20, bacnet.MustParseAddress("2:6"), bacnet.PathAvailable)
	s := newTestService(engine)

	table, err := s.RoutingTable()
	assert.Nil(t, table)
	assert.ErrorIs(t, err, ErrInconsistentCache)
	assert.Contains(t, err.Error(), "2:6")
}

func TestRoutingTableAddressCollision(t *testing.T) {
	r := bacnet.MustParseAddress("2:5")
	routers := []bacnet.RouterEntry{
		{SNet: 0, Address: r, Networks: []uint16{10}},
		{SNet: 3, Address: r, Networks: []uint16{30}},
	}
	paths := []bacnet.PathEntry{
		{PathKey: bacnet.PathKey{SNet: 0, DNet: 10}, PathInfo: bacnet.PathInfo{Address: r}},
		{PathKey: bacnet.PathKey{SNet: 3, DNet: 30}, PathInfo: bacnet.PathInfo{Address: r, Status: bacnet.PathBusy}},
	}

	table, err := buildRoutingTable(routers, paths)
	require.NoError(t, err)
	require.Len(t, table, 1)

	record := table["2:5"]
	assert.Equal(t, uint16(3), record.SourceNetwork)
	assert.Equal(t, []uint16{30}, record.DestinationNetworks)
	assert.Len(t, record.Paths, 2)
}

func TestRoutingTableRouterWithoutPaths(t *testing.T) {
	engine := newFakeEngine()
	engine.cache.UpdateRouterReferences(0, bacnet.MustParseAddress("192.168.1.20"), []uint16{10, 11})
	s := newTestService(engine)

	table, err := s.RoutingTable()
	require.NoError(t, err)
	record := table["192.168.1.20"]
	require.NotNil(t, record)
	assert.Equal(t, []uint16{10, 11}, record.DestinationNetworks)
	assert.Empty(t, record.Paths)
}
