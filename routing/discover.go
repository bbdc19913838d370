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
	"fmt"
	"log/slog"
	"slices"

	"github.com/edgeo-scada/bacnet/bacnet"
)

// DiscoveredDevice is a device found by Discover and the networks it was
// seen on
type DiscoveredDevice struct {
	ObjectID bacnet.ObjectIdentifier `json:"object_id" yaml:"object_id"`
	Address  bacnet.Address          `json:"address" yaml:"address"`
	VendorID uint16                  `json:"vendor_id" yaml:"vendor_id"`
	Networks []uint16                `json:"networks" yaml:"networks"`
}

type finding struct {
	device  *bacnet.DeviceInfo
	network uint16
}

// Discover explores the internetwork. It learns the local network number and
// the networks of the routers that answer (locally, then globally when no
// local router does), then sends one Who-Is per known network. Without any
// known network, or with WithGlobalWhoIs, a single broadcast Who-Is is sent
// instead. Devices found so far are returned keyed by object identifier.
func (s *Service) Discover(ctx context.Context, opts ...DiscoverOption) (map[string]*DiscoveredDevice, error) {
	o := defaultDiscoverOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.reset {
		s.devicesMu.Lock()
		s.discovered = make(map[string]*DiscoveredDevice)
		s.devicesMu.Unlock()
	}

	local, err := s.WhatIsNetworkNumber(ctx, WithTimeout(o.timeout))
	if err != nil {
		return nil, err
	}
	if local != 0 {
		s.learned.Add(local)
	}

	routed, err := s.WhoIsRouterToNetwork(ctx, WithTimeout(o.timeout))
	if err != nil {
		return nil, err
	}
	if len(routed) == 0 {
		routed, err = s.WhoIsRouterToNetwork(ctx, WithGlobalBroadcast(), WithTimeout(o.timeout))
		if err != nil {
			return nil, err
		}
	}
	s.learned.Add(routed...)

	for _, n := range o.networks {
		if n != 0 && n < bacnet.GlobalNetwork {
			s.learned.Add(n)
		}
	}

	networks := s.learned.Sorted()
	s.logger.Info("networks found", slog.Any("networks", networks))

	var found []finding
	if len(networks) > 0 && !o.globalBroadcast {
		for _, network := range networks {
			if err := o.limiter.Wait(ctx); err != nil {
				return s.recordDevices(found), fmt.Errorf("discover network %d: %w", network, err)
			}
			s.logger.Info("discovering network", slog.Uint64("network", uint64(network)))

			devices, err := s.engine.WhoIs(ctx,
				bacnet.WithTargetNetwork(network),
				bacnet.WithDeviceRange(o.lowLimit, o.highLimit),
				bacnet.WithDiscoveryTimeout(o.timeout),
			)
			if err != nil && !bacnet.IsTimeout(err) {
				return s.recordDevices(found), fmt.Errorf("discover network %d: %w", network, err)
			}
			for _, dev := range devices {
				found = append(found, finding{device: dev, network: network})
			}
		}
	} else {
		whoIsOpts := []bacnet.DiscoverOption{
			bacnet.WithDeviceRange(o.lowLimit, o.highLimit),
			bacnet.WithDiscoveryTimeout(o.timeout),
		}
		if o.globalBroadcast {
			s.logger.Warn("issuing a global broadcast who-is, this can flood the network")
			whoIsOpts = append(whoIsOpts, bacnet.WithTargetAddress(bacnet.GlobalBroadcast()))
		} else {
			s.logger.Info("no BACnet network found, issuing a local broadcast who-is")
		}

		devices, err := s.engine.WhoIs(ctx, whoIsOpts...)
		if err != nil && !bacnet.IsTimeout(err) {
			return nil, fmt.Errorf("discover: %w", err)
		}
		for _, dev := range devices {
			found = append(found, finding{device: dev, network: local})
		}
	}

	result := s.recordDevices(found)
	s.logger.Info("discovery done",
		slog.Int("devices", len(result)),
		slog.Int("networks", len(networks)),
	)
	return result, nil
}

// DiscoveredDevices returns the devices found by previous Discover calls
func (s *Service) DiscoveredDevices() map[string]*DiscoveredDevice {
	return s.recordDevices(nil)
}

// recordDevices merges findings into the discovered devices and returns a
// copy of the whole set
func (s *Service) recordDevices(found []finding) map[string]*DiscoveredDevice {
	s.devicesMu.Lock()
	defer s.devicesMu.Unlock()

	for _, f := range found {
		key := f.device.ObjectID.String()
		dev, ok := s.discovered[key]
		if !ok {
			dev = &DiscoveredDevice{
				ObjectID: f.device.ObjectID,
				Address:  f.device.Address,
				VendorID: f.device.VendorID,
			}
			s.discovered[key] = dev
		}
		if !slices.Contains(dev.Networks, f.network) {
			dev.Networks = append(dev.Networks, f.network)
			slices.Sort(dev.Networks)
		}
	}

	result := make(map[string]*DiscoveredDevice, len(s.discovered))
	for key, dev := range s.discovered {
		copied := *dev
		copied.Networks = slices.Clone(dev.Networks)
		result[key] = &copied
	}
	return result
}
