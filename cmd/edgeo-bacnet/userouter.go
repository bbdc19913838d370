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

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/routing"
)

var useRouterSNet uint16

var useRouterCmd = &cobra.Command{
	Use:   "use-router <address> <network>...",
	Short: "Register a router to remote networks",
	Long: `Use-router probes a router with a directed Who-Is and, when it answers,
records it as the path to the given networks.

Routers can also be listed in the configuration file:

  routers:
    - address: 192.168.1.20
      networks: [10, 11]

Examples:
  edgeo-bacnet use-router 192.168.1.20 10 11
  edgeo-bacnet use-router 2:5 30 --snet 2`,

	Args: cobra.MinimumNArgs(2),
	RunE: runUseRouter,
}

func init() {
	useRouterCmd.Flags().Uint16Var(&useRouterSNet, "snet", 0, "Network the router sits on (0 = local)")
}

func runUseRouter(cmd *cobra.Command, args []string) error {
	cfg := routing.RouterConfig{
		Address:       args[0],
		SourceNetwork: useRouterSNet,
	}
	for _, arg := range args[1:] {
		network, err := parseNetwork(arg)
		if err != nil {
			return err
		}
		cfg.Networks = append(cfg.Networks, network)
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.routing.UseRouter(ctx, cfg); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Known networks: %v\n", s.routing.KnownNetworks())

	return printRoutingTable(newFormatter(), s.routing)
}
