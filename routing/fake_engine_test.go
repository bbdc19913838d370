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
	"io"
	"log/slog"
	"sync"

	"github.com/edgeo-scada/bacnet/bacnet"
)

// fakeEngine stands in for the protocol engine. Unset hooks behave like a
// network where nobody answers.
type fakeEngine struct {
	cache *bacnet.RouterInfoCache

	mu sync.Mutex

	// Station addresses that answer a directed Who-Is
	alive map[string]bool

	whoIs       func(o *bacnet.DiscoverOptions) []*bacnet.DeviceInfo
	whoIsRouter func(dest *bacnet.Address, network uint16) ([]uint16, error)
	whatIs      func(dest *bacnet.Address) (uint16, error)

	whoIsCalls       []bacnet.DiscoverOptions
	whoIsRouterDests []*bacnet.Address
	irtDests         []*bacnet.Address
	updateCalls      int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		cache: bacnet.NewRouterInfoCache(),
		alive: make(map[string]bool),
	}
}

func (f *fakeEngine) setAlive(addrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range addrs {
		f.alive[a] = true
	}
}

func (f *fakeEngine) WhoIs(ctx context.Context, opts ...bacnet.DiscoverOption) ([]*bacnet.DeviceInfo, error) {
	o := &bacnet.DiscoverOptions{}
	for _, opt := range opts {
		opt(o)
	}

	f.mu.Lock()
	f.whoIsCalls = append(f.whoIsCalls, *o)
	hook := f.whoIs
	alive := o.Target != nil && f.alive[o.Target.String()]
	f.mu.Unlock()

	if hook != nil {
		return hook(o), nil
	}
	if alive {
		return []*bacnet.DeviceInfo{{
			ObjectID: bacnet.NewObjectIdentifier(bacnet.ObjectTypeDevice, 1),
			Address:  *o.Target,
		}}, nil
	}
	return nil, nil
}

func (f *fakeEngine) WhoIsRouterToNetwork(ctx context.Context, dest *bacnet.Address, network uint16) ([]uint16, error) {
	f.mu.Lock()
	f.whoIsRouterDests = append(f.whoIsRouterDests, dest)
	hook := f.whoIsRouter
	f.mu.Unlock()

	if hook != nil {
		return hook(dest, network)
	}
	<-ctx.Done()
	return nil, bacnet.ErrTimeout
}

func (f *fakeEngine) InitializeRoutingTable(ctx context.Context, dest *bacnet.Address) error {
	f.mu.Lock()
	f.irtDests = append(f.irtDests, dest)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) WhatIsNetworkNumber(ctx context.Context, dest *bacnet.Address) (uint16, error) {
	f.mu.Lock()
	hook := f.whatIs
	f.mu.Unlock()

	if hook != nil {
		return hook(dest)
	}
	<-ctx.Done()
	return 0, bacnet.ErrTimeout
}

func (f *fakeEngine) UpdateRouterReferences(snet uint16, addr bacnet.Address, dnets []uint16) error {
	f.mu.Lock()
	f.updateCalls++
	f.mu.Unlock()
	f.cache.UpdateRouterReferences(snet, addr, dnets)
	return nil
}

func (f *fakeEngine) RouterInfoCache() *bacnet.RouterInfoCache {
	return f.cache
}

func (f *fakeEngine) probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.whoIsCalls)
}

func newTestService(engine Engine, opts ...Option) *Service {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewService(engine, opts...)
}
