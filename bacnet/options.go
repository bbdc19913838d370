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
	"log/slog"
	"time"
)

// clientOptions holds configuration for the BACnet client
type clientOptions struct {
	// Network configuration
	localAddress     string
	broadcastAddress string
	networkNumber    uint16
	bbmdAddress      string
	bbmdPort         int
	foreignDeviceTTL time.Duration

	// Timeouts
	timeout time.Duration

	// Router information cache shared with the routing layer
	routerCache *RouterInfoCache

	// Logging
	logger *slog.Logger
}

// defaultOptions returns the default client options
func defaultOptions() *clientOptions {
	return &clientOptions{
		broadcastAddress: "255.255.255.255",
		timeout:          3 * time.Second,
		logger:           slog.Default(),
	}
}

// Option is a functional option for configuring the client
type Option func(*clientOptions)

// WithLocalAddress sets the local address to bind to
func WithLocalAddress(addr string) Option {
	return func(o *clientOptions) {
		o.localAddress = addr
	}
}

// WithBroadcastAddress sets the IPv4 directed broadcast address of the subnet
func WithBroadcastAddress(addr string) Option {
	return func(o *clientOptions) {
		o.broadcastAddress = addr
	}
}

// WithNetworkNumber sets the BACnet network number of the local network,
// if known. Zero means unknown.
func WithNetworkNumber(net uint16) Option {
	return func(o *clientOptions) {
		o.networkNumber = net
	}
}

// WithBBMD sets the BBMD (BACnet Broadcast Management Device) address for foreign device registration
func WithBBMD(addr string, port int, ttl time.Duration) Option {
	return func(o *clientOptions) {
		o.bbmdAddress = addr
		o.bbmdPort = port
		o.foreignDeviceTTL = ttl
	}
}

// WithTimeout sets the socket read/write timeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithRouterInfoCache makes the client use an existing router information
// cache instead of creating its own.
func WithRouterInfoCache(cache *RouterInfoCache) Option {
	return func(o *clientOptions) {
		o.routerCache = cache
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// DiscoverOptions holds configuration for device discovery
type DiscoverOptions struct {
	// Range limits for WhoIs
	LowLimit  *uint32
	HighLimit *uint32

	// Timeout for discovery
	Timeout time.Duration

	// Target is where the Who-Is is sent. Nil means local broadcast.
	Target *Address
}

// DiscoverOption is a functional option for discovery
type DiscoverOption func(*DiscoverOptions)

// defaultDiscoverOptions returns default discovery options
func defaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{
		Timeout: 3 * time.Second,
	}
}

// WithDeviceRange sets the device ID range for discovery
func WithDeviceRange(low, high uint32) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.LowLimit = &low
		o.HighLimit = &high
	}
}

// WithDiscoveryTimeout sets the discovery timeout
func WithDiscoveryTimeout(d time.Duration) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Timeout = d
	}
}

// WithTargetNetwork broadcasts the Who-Is on a remote network (0 = local)
func WithTargetNetwork(net uint16) DiscoverOption {
	return func(o *DiscoverOptions) {
		if net == 0 {
			o.Target = nil
			return
		}
		addr := RemoteBroadcast(net)
		o.Target = &addr
	}
}

// WithTargetAddress directs the Who-Is at an address
func WithTargetAddress(addr Address) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Target = &addr
	}
}
