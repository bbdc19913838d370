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

package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/routing"
)

var (
	discoverNetworks []uint
	discoverLow      uint32
	discoverHigh     uint32
	discoverGlobal   bool
	discoverRate     float64
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Explore every reachable BACnet network",
	Long: `Discover finds the local network number and the routers to other networks,
then sends one Who-Is per known network and lists the devices found.

When no network is known a single local broadcast Who-Is is sent.

Examples:
  # Explore the internetwork
  edgeo-bacnet discover

  # Also probe networks 20 and 21
  edgeo-bacnet discover --networks 20,21

  # One global broadcast instead of per-network requests
  edgeo-bacnet discover --global`,

	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().UintSliceVar(&discoverNetworks, "networks", nil, "Additional networks to probe")
	discoverCmd.Flags().Uint32Var(&discoverLow, "low", 0, "Low limit for device instance range")
	discoverCmd.Flags().Uint32Var(&discoverHigh, "high", bacnet.MaxInstance, "High limit for device instance range")
	discoverCmd.Flags().BoolVar(&discoverGlobal, "global", false, "Use a single global broadcast Who-Is (can flood the network)")
	discoverCmd.Flags().Float64Var(&discoverRate, "rate", 5, "Per-network Who-Is requests per second (0 = unlimited)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	opts := []routing.DiscoverOption{
		routing.WithInstanceRange(discoverLow, discoverHigh),
		routing.WithDiscoverTimeout(requestTimeout()),
		routing.WithRate(discoverRate),
	}
	for _, n := range discoverNetworks {
		if n == 0 || n >= uint(bacnet.GlobalNetwork) {
			return fmt.Errorf("network %d: %w", n, routing.ErrInvalidNetwork)
		}
		opts = append(opts, routing.WithNetworks(uint16(n)))
	}
	if discoverGlobal {
		opts = append(opts, routing.WithGlobalWhoIs())
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(os.Stderr, "Discovering BACnet networks...")
	start := time.Now()

	found, err := s.routing.Discover(ctx, opts...)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Found %d device(s) on networks %v in %s\n",
		len(found), s.routing.KnownNetworks(), time.Since(start).Round(time.Millisecond))

	return printDiscovered(newFormatter(), found)
}

func printDiscovered(f *Formatter, found map[string]*routing.DiscoveredDevice) error {
	devices := make([]*routing.DiscoveredDevice, 0, len(found))
	for _, dev := range found {
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ObjectID.Instance < devices[j].ObjectID.Instance
	})

	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		rows = append(rows, []string{
			dev.ObjectID.String(),
			dev.Address.String(),
			fmt.Sprint(dev.VendorID),
			joinNetworks(dev.Networks),
		})
	}
	return f.Print(devices, []string{"OBJECT", "ADDRESS", "VENDOR", "NETWORKS"}, rows)
}
