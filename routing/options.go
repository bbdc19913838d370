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
	"log/slog"
	"time"

	"github.com/edgeo-scada/bacnet/bacnet"
	"golang.org/x/time/rate"
)

// serviceOptions holds configuration for the routing service
type serviceOptions struct {
	// Default bound for discovery requests
	timeout time.Duration

	// Bound for the liveness probe of UseRouter
	probeTimeout time.Duration

	// Learned network set, shared when injected
	learned *LearnedNetworks

	logger *slog.Logger
}

func defaultServiceOptions() *serviceOptions {
	return &serviceOptions{
		timeout:      3 * time.Second,
		probeTimeout: 3 * time.Second,
		logger:       slog.Default(),
	}
}

// Option is a functional option for configuring the service
type Option func(*serviceOptions)

// WithDefaultTimeout sets the timeout used by discovery requests that do not
// set their own
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.timeout = d
	}
}

// WithProbeTimeout sets how long UseRouter waits for the router to answer
// its Who-Is
func WithProbeTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.probeTimeout = d
	}
}

// WithLearnedNetworks makes the service record into an existing set
func WithLearnedNetworks(l *LearnedNetworks) Option {
	return func(o *serviceOptions) {
		o.learned = l
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// requestOptions holds per-call discovery settings
type requestOptions struct {
	network         uint16
	destination     *bacnet.Address
	globalBroadcast bool
	timeout         time.Duration
}

// RequestOption is a functional option for a discovery request
type RequestOption func(*requestOptions)

// WithNetwork only asks for routers to network (0 = any)
func WithNetwork(network uint16) RequestOption {
	return func(o *requestOptions) {
		o.network = network
	}
}

// WithDestination sends the request to dest instead of the local broadcast
func WithDestination(dest bacnet.Address) RequestOption {
	return func(o *requestOptions) {
		o.destination = &dest
	}
}

// WithGlobalBroadcast sends the request to every network. It is ignored
// when WithDestination is also given.
func WithGlobalBroadcast() RequestOption {
	return func(o *requestOptions) {
		o.globalBroadcast = true
	}
}

// WithTimeout bounds the request
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// discoverOptions holds configuration for Discover
type discoverOptions struct {
	networks        []uint16
	lowLimit        uint32
	highLimit       uint32
	globalBroadcast bool
	timeout         time.Duration
	reset           bool
	limiter         *rate.Limiter
}

func defaultDiscoverOptions() *discoverOptions {
	return &discoverOptions{
		highLimit: bacnet.MaxInstance,
		timeout:   3 * time.Second,
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

// DiscoverOption is a functional option for Discover
type DiscoverOption func(*discoverOptions)

// WithNetworks also probes the given networks besides the learned ones
func WithNetworks(networks ...uint16) DiscoverOption {
	return func(o *discoverOptions) {
		o.networks = append(o.networks, networks...)
	}
}

// WithInstanceRange limits the Who-Is requests to a device instance range
func WithInstanceRange(low, high uint32) DiscoverOption {
	return func(o *discoverOptions) {
		o.lowLimit = low
		o.highLimit = high
	}
}

// WithGlobalWhoIs replaces the per-network Who-Is requests by a single global
// broadcast
func WithGlobalWhoIs() DiscoverOption {
	return func(o *discoverOptions) {
		o.globalBroadcast = true
	}
}

// WithDiscoverTimeout bounds every request Discover issues
func WithDiscoverTimeout(d time.Duration) DiscoverOption {
	return func(o *discoverOptions) {
		o.timeout = d
	}
}

// WithReset forgets previously discovered devices before discovering
func WithReset() DiscoverOption {
	return func(o *discoverOptions) {
		o.reset = true
	}
}

// WithRate sets how many per-network Who-Is requests are sent per second
func WithRate(perSecond float64) DiscoverOption {
	return func(o *discoverOptions) {
		if perSecond <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}
