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

// Package routing discovers BACnet routers and keeps the topology view of
// the networks they reach.
//
// A Service sits on top of a protocol engine (normally a *bacnet.Client).
// Discovery requests are bounded by a timeout and resolve to an empty answer
// when nobody replies; only malformed input and engine failures are
// returned as errors.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/hashicorp/go-multierror"
)

// Engine is what the routing service needs from the protocol engine
type Engine interface {
	WhoIs(ctx context.Context, opts ...bacnet.DiscoverOption) ([]*bacnet.DeviceInfo, error)
	WhoIsRouterToNetwork(ctx context.Context, dest *bacnet.Address, network uint16) ([]uint16, error)
	InitializeRoutingTable(ctx context.Context, dest *bacnet.Address) error
	WhatIsNetworkNumber(ctx context.Context, dest *bacnet.Address) (uint16, error)
	UpdateRouterReferences(snet uint16, addr bacnet.Address, dnets []uint16) error
	RouterInfoCache() *bacnet.RouterInfoCache
}

var _ Engine = (*bacnet.Client)(nil)

// RouterConfig describes a router to register with UseRouter
type RouterConfig struct {
	// Address of the router, in any form bacnet.ParseAddress accepts
	Address string `mapstructure:"address" json:"address" yaml:"address"`

	// Networks reachable through the router
	Networks []uint16 `mapstructure:"networks" json:"networks" yaml:"networks"`

	// SourceNetwork is the network the router sits on (0 = local)
	SourceNetwork uint16 `mapstructure:"snet" json:"snet,omitempty" yaml:"snet,omitempty"`
}

// Service discovers routers and maintains the routing topology
type Service struct {
	engine  Engine
	opts    *serviceOptions
	learned *LearnedNetworks
	logger  *slog.Logger

	// Serializes the cache writes of UseRouter
	commitMu sync.Mutex

	devicesMu  sync.Mutex
	discovered map[string]*DiscoveredDevice
}

// NewService creates a routing service on top of engine
func NewService(engine Engine, opts ...Option) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(options)
	}

	learned := options.learned
	if learned == nil {
		learned = NewLearnedNetworks()
	}

	return &Service{
		engine:     engine,
		opts:       options,
		learned:    learned,
		logger:     options.logger,
		discovered: make(map[string]*DiscoveredDevice),
	}
}

// LearnedNetworks returns the set of networks learned so far
func (s *Service) LearnedNetworks() *LearnedNetworks {
	return s.learned
}

// KnownNetworks returns the learned networks in ascending order
func (s *Service) KnownNetworks() []uint16 {
	return s.learned.Sorted()
}

// ResetLearnedNetworks forgets every learned network
func (s *Service) ResetLearnedNetworks() {
	s.learned.Reset()
}

func (s *Service) requestOptions(opts []RequestOption) *requestOptions {
	o := &requestOptions{timeout: s.opts.timeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WhoIsRouterToNetwork asks which networks the reachable routers serve. It
// returns the networks of the first router that answers, or an empty list
// when none answers before the timeout.
func (s *Service) WhoIsRouterToNetwork(ctx context.Context, opts ...RequestOption) ([]uint16, error) {
	o := s.requestOptions(opts)

	dest := o.destination
	if dest == nil && o.globalBroadcast {
		global := bacnet.GlobalBroadcast()
		dest = &global
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	networks, err := s.engine.WhoIsRouterToNetwork(ctx, dest, o.network)
	if err != nil {
		if bacnet.IsTimeout(err) {
			s.logger.Warn("no router answered who-is-router-to-network",
				slog.Uint64("network", uint64(o.network)),
				slog.String("destination", destinationString(dest)),
				slog.Duration("timeout", o.timeout),
			)
			return []uint16{}, nil
		}
		return nil, fmt.Errorf("who-is-router-to-network: %w", err)
	}

	s.logger.Debug("routers answered",
		slog.String("destination", destinationString(dest)),
		slog.Any("networks", networks),
	)
	return networks, nil
}

// InitRoutingTable sends an empty Initialize-Routing-Table to dest (nil =
// local broadcast). The acknowledgements are processed by the engine.
func (s *Service) InitRoutingTable(ctx context.Context, dest *bacnet.Address) error {
	if err := s.engine.InitializeRoutingTable(ctx, dest); err != nil {
		return fmt.Errorf("initialize-routing-table: %w", err)
	}
	s.logger.Debug("initialize-routing-table sent",
		slog.String("destination", destinationString(dest)),
	)
	return nil
}

// WhatIsNetworkNumber asks for the number of the local network. It returns
// 0 when nobody answers before the timeout.
func (s *Service) WhatIsNetworkNumber(ctx context.Context, opts ...RequestOption) (uint16, error) {
	o := s.requestOptions(opts)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	network, err := s.engine.WhatIsNetworkNumber(ctx, o.destination)
	if err != nil {
		if bacnet.IsTimeout(err) {
			s.logger.Warn("no answer to what-is-network-number",
				slog.Duration("timeout", o.timeout),
			)
			return 0, nil
		}
		return 0, fmt.Errorf("what-is-network-number: %w", err)
	}
	return network, nil
}

// UseRouter registers a router and the networks it reaches. The router is
// first probed with a directed Who-Is; when it does not answer nothing is
// recorded and nil is returned. Invalid input fails before any I/O.
func (s *Service) UseRouter(ctx context.Context, cfg RouterConfig) error {
	addr, err := bacnet.ParseAddress(cfg.Address)
	if err != nil {
		return fmt.Errorf("use router: %w", err)
	}
	if !addr.IsStation() {
		return fmt.Errorf("use router %s: not a station address: %w", addr, bacnet.ErrInvalidAddress)
	}
	for _, dnet := range cfg.Networks {
		if dnet == 0 || dnet == bacnet.GlobalNetwork {
			return fmt.Errorf("use router %s: network %d: %w", addr, dnet, ErrInvalidNetwork)
		}
	}

	logger := s.logger.With(
		slog.String("router", addr.String()),
		slog.Uint64("snet", uint64(cfg.SourceNetwork)),
	)

	devices, err := s.engine.WhoIs(ctx,
		bacnet.WithTargetAddress(addr),
		bacnet.WithDiscoveryTimeout(s.opts.probeTimeout),
	)
	if err != nil && !bacnet.IsTimeout(err) {
		return fmt.Errorf("probe router %s: %w", addr, err)
	}
	if len(devices) == 0 {
		logger.Warn("router did not answer, not registered",
			slog.Any("networks", cfg.Networks),
		)
		return nil
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.engine.UpdateRouterReferences(cfg.SourceNetwork, addr, cfg.Networks); err != nil {
		return fmt.Errorf("update router references: %w", err)
	}

	cache := s.engine.RouterInfoCache()
	for _, dnet := range cfg.Networks {
		cache.SetPathInfo(cfg.SourceNetwork, dnet, addr, bacnet.PathAvailable)
		s.learned.Add(dnet)
	}

	logger.Info("router registered", slog.Any("networks", cfg.Networks))
	return nil
}

// UseRouters registers every router of the list and returns the combined
// errors of the ones that failed
func (s *Service) UseRouters(ctx context.Context, routers []RouterConfig) error {
	var result *multierror.Error
	for _, cfg := range routers {
		if err := s.UseRouter(ctx, cfg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func destinationString(dest *bacnet.Address) string {
	if dest == nil {
		return bacnet.LocalBroadcast().String()
	}
	return dest.String()
}
