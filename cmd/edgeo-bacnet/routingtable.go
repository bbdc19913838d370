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
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/routing"
)

var (
	tableInit bool
	tableWait time.Duration
)

var routingTableCmd = &cobra.Command{
	Use:   "routing-table",
	Short: "Show the routing table",
	Long: `Routing-table shows every known router with the networks it reaches and
the status of each path. Routers come from the configuration file and, with
--init, from the Initialize-Routing-Table acknowledgements received.

Examples:
  edgeo-bacnet routing-table
  edgeo-bacnet routing-table --init -o yaml`,

	Args: cobra.NoArgs,
	RunE: runRoutingTable,
}

func init() {
	routingTableCmd.Flags().BoolVar(&tableInit, "init", false, "Broadcast Initialize-Routing-Table first")
	routingTableCmd.Flags().DurationVar(&tableWait, "wait", 2*time.Second, "Time to wait for acknowledgements with --init")
}

func runRoutingTable(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if tableInit {
		if err := initAndWait(ctx, s, nil, tableWait); err != nil {
			return err
		}
	}

	return printRoutingTable(newFormatter(), s.routing)
}

// initAndWait sends Initialize-Routing-Table and waits for the acks to land
// in the router cache
func initAndWait(ctx context.Context, s *session, dest *bacnet.Address, wait time.Duration) error {
	if err := s.routing.InitRoutingTable(ctx, dest); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Waiting %s for routing table acknowledgements...\n", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printRoutingTable(f *Formatter, svc *routing.Service) error {
	table, err := svc.RoutingTable()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rec := table[k]
		paths := make([]string, 0, len(rec.Paths))
		for _, p := range rec.Paths {
			paths = append(paths, fmt.Sprintf("%d:%s", p.Path.DNet, p.Status))
		}
		rows = append(rows, []string{
			k,
			fmt.Sprint(rec.SourceNetwork),
			joinNetworks(rec.DestinationNetworks),
			strings.Join(paths, " "),
		})
	}

	if len(rows) == 0 && (f.format == FormatTable || f.format == "") {
		fmt.Fprintln(os.Stderr, "No routers known")
		return nil
	}

	return f.Print(table, []string{"ADDRESS", "SNET", "DNETS", "PATHS"}, rows)
}
