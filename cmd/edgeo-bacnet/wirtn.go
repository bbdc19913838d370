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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/routing"
)

var (
	wirtnDest   string
	wirtnGlobal bool
)

var wirtnCmd = &cobra.Command{
	Use:   "wirtn [network]",
	Short: "Send Who-Is-Router-To-Network",
	Long: `Wirtn asks which routers reach a network and prints the networks announced
by the first router that answers. Without a network every router answers.

Examples:
  # Ask every local router for its networks
  edgeo-bacnet wirtn

  # Find a router to network 10
  edgeo-bacnet wirtn 10

  # Ask a specific router
  edgeo-bacnet wirtn --dest 192.168.1.20`,

	Args: cobra.MaximumNArgs(1),
	RunE: runWirtn,
}

func init() {
	wirtnCmd.Flags().StringVar(&wirtnDest, "dest", "", "Send to this address instead of broadcasting")
	wirtnCmd.Flags().BoolVar(&wirtnGlobal, "global", false, "Use a global broadcast")
}

func parseNetwork(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid network %q: %w", s, err)
	}
	return uint16(n), nil
}

func runWirtn(cmd *cobra.Command, args []string) error {
	var opts []routing.RequestOption

	if len(args) == 1 {
		network, err := parseNetwork(args[0])
		if err != nil {
			return err
		}
		opts = append(opts, routing.WithNetwork(network))
	}

	switch {
	case wirtnDest != "" && wirtnGlobal:
		return fmt.Errorf("--dest and --global are mutually exclusive")
	case wirtnDest != "":
		dest, err := bacnet.ParseAddress(wirtnDest)
		if err != nil {
			return err
		}
		opts = append(opts, routing.WithDestination(dest))
	case wirtnGlobal:
		opts = append(opts, routing.WithGlobalBroadcast())
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	networks, err := s.routing.WhoIsRouterToNetwork(ctx, opts...)
	if err != nil {
		return err
	}

	if len(networks) == 0 {
		fmt.Fprintln(os.Stderr, "No router answered")
		return nil
	}

	return printNetworks(newFormatter(), networks)
}

func printNetworks(f *Formatter, networks []uint16) error {
	rows := make([][]string, 0, len(networks))
	for _, n := range networks {
		rows = append(rows, []string{strconv.FormatUint(uint64(n), 10)})
	}
	return f.Print(struct {
		Networks []uint16 `json:"networks" yaml:"networks"`
	}{networks}, []string{"NETWORK"}, rows)
}
