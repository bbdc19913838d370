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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo-scada/bacnet/bacnet"
)

func device(instance uint32, addr string) *bacnet.DeviceInfo {
	return &bacnet.DeviceInfo{
		ObjectID: bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, instance),
		Address:  bacnet.MustParseAddress(addr),
		VendorID: 15,
	}
}

func TestDiscoverKnownNetworks(t *testing.T) {
	engine := newFakeEngine()
	engine.whatIs = func(dest *bacnet.Address) (uint16, error) { return 1, nil }
	engine.whoIsRouter = func(dest *bacnet.Address, network uint16) ([]uint16, error) {
		if dest == nil {
			return nil, bacnet.ErrTimeout
		}
		return []uint16{2, 3}, nil
	}
	engine.whoIs = func(o *bacnet.DiscoverOptions) []*bacnet.DeviceInfo {
		switch o.Target.Net {
		case 2:
			return []*bacnet.DeviceInfo{device(200, "2:10")}
		case 3:
			return []*bacnet.DeviceInfo{device(200, "2:10"), device(300, "3:4")}
		default:
			return nil
		}
	}
	s := newTestService(engine)

	found, err := s.Discover(context.Background(), WithRate(0), WithDiscoverTimeout(50*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, []uint16{1, 2, 3}, s.KnownNetworks())

	require.Len(t, engine.whoIsRouterDests, 2)
	assert.Nil(t, engine.whoIsRouterDests[0])
	assert.Equal(t, bacnet.AddressGlobalBroadcast, engine.whoIsRouterDests[1].Type)

	require.Len(t, engine.whoIsCalls, 3)
	for i, network := range []uint16{1, 2, 3} {
		call := engine.whoIsCalls[i]
		require.NotNil(t, call.Target)
		assert.Equal(t, bacnet.RemoteBroadcast(network), *call.Target)
		assert.Equal(t, uint32(0), *call.LowLimit)
		assert.Equal(t, uint32(bacnet.MaxInstance), *call.HighLimit)
		assert.Equal(t, 50*time.Millisecond, call.Timeout)
	}

	require.Len(t, found, 2)
	assert.Equal(t, []uint16{2, 3}, found["device:200"].Networks)
	assert.Equal(t, "2:10", found["device:200"].Address.String())
	assert.Equal(t, []uint16{3}, found["device:300"].Networks)

	// Results accumulate until reset
	assert.Len(t, s.DiscoveredDevices(), 2)
	engine.whoIs = func(o *bacnet.DiscoverOptions) []*bacnet.DeviceInfo { return nil }
	found, err = s.Discover(context.Background(), WithRate(0), WithReset(), WithDiscoverTimeout(10*time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscoverFallsBackToLocalBroadcast(t *testing.T) {
	engine := newFakeEngine()
	engine.whoIs = func(o *bacnet.DiscoverOptions) []*bacnet.DeviceInfo {
		return []*bacnet.DeviceInfo{device(5, "192.168.1.50")}
	}
	s := newTestService(engine)

	found, err := s.Discover(context.Background(),
		WithDiscoverTimeout(10*time.Millisecond),
		WithInstanceRange(1, 10),
	)
	require.NoError(t, err)

	require.Len(t, engine.whoIsCalls, 1)
	call := engine.whoIsCalls[0]
	assert.Nil(t, call.Target)
	assert.Equal(t, uint32(1), *call.LowLimit)
	assert.Equal(t, uint32(10), *call.HighLimit)

	require.Contains(t, found, "device:5")
	assert.Equal(t, []uint16{0}, found["device:5"].Networks)
}

func TestDiscoverGlobalWhoIs(t *testing.T) {
	engine := newFakeEngine()
	engine.whoIsRouter = func(dest *bacnet.Address, network uint16) ([]uint16, error) {
		return []uint16{2}, nil
	}
	s := newTestService(engine)

	_, err := s.Discover(context.Background(), WithGlobalWhoIs(), WithDiscoverTimeout(10*time.Millisecond))
	require.NoError(t, err)

	require.Len(t, engine.whoIsRouterDests, 1, "no global who-is-router when a local router answers")
	require.Len(t, engine.whoIsCalls, 1)
	require.NotNil(t, engine.whoIsCalls[0].Target)
	assert.Equal(t, bacnet.AddressGlobalBroadcast, engine.whoIsCalls[0].Target.Type)
}

func TestDiscoverExtraNetworks(t *testing.T) {
	engine := newFakeEngine()
	s := newTestService(engine)

	_, err := s.Discover(context.Background(),
		WithNetworks(8, 0, bacnet.GlobalNetwork),
		WithRate(0),
		WithDiscoverTimeout(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, []uint16{8}, s.KnownNetworks())
	require.Len(t, engine.whoIsCalls, 1)
	assert.Equal(t, bacnet.RemoteBroadcast(8), *engine.whoIsCalls[0].Target)
}

func TestDiscoverCancelled(t *testing.T) {
	engine := newFakeEngine()
	engine.whatIs = func(dest *bacnet.Address) (uint16, error) { return 1, nil }
	engine.whoIsRouter = func(dest *bacnet.Address, network uint16) ([]uint16, error) {
		return []uint16{2, 3, 4}, nil
	}
	s := newTestService(engine)

	ctx, cancel := context.WithCancel(context.Background())
	engine.whoIs = func(o *bacnet.DiscoverOptions) []*bacnet.DeviceInfo {
		cancel()
		return nil
	}

	_, err := s.Discover(ctx, WithRate(1), WithDiscoverTimeout(10*time.Millisecond))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, engine.whoIsCalls, 1)
}
