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
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
)

var irtWait time.Duration

var irtCmd = &cobra.Command{
	Use:   "irt [address]",
	Short: "Send Initialize-Routing-Table",
	Long: `Irt sends an empty Initialize-Routing-Table, which asks routers for their
complete routing table. The acknowledgements are folded into the router cache
and the resulting routing table is printed.

Examples:
  # Ask every local router
  edgeo-bacnet irt

  # Ask one router and wait longer for the answer
  edgeo-bacnet irt 192.168.1.20 --wait 5s`,

	Args: cobra.MaximumNArgs(1),
	RunE: runIRT,
}

func init() {
	irtCmd.Flags().DurationVar(&irtWait, "wait", 2*time.Second, "Time to wait for acknowledgements")
}

func runIRT(cmd *cobra.Command, args []string) error {
	var dest *bacnet.Address
	if len(args) == 1 {
		addr, err := bacnet.ParseAddress(args[0])
		if err != nil {
			return err
		}
		dest = &addr
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := initAndWait(ctx, s, dest, irtWait); err != nil {
		return err
	}

	return printRoutingTable(newFormatter(), s.routing)
}
