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
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/routing"
)

var metricsAddr string

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start an interactive BACnet routing session",
	Long: `Interactive mode provides a REPL that keeps one client and its router cache
alive across commands.

Commands:
  scan [network]                   - Discover devices
  discover                         - Explore every reachable network
  wirtn [network]                  - Who-Is-Router-To-Network
  irt [address]                    - Initialize-Routing-Table
  winn                             - What-Is-Network-Number
  use-router <address> <net>...    - Register a router
  routing-table                    - Show the routing table
  networks                         - Show the learned networks
  reset-networks                   - Forget the learned networks
  metrics                          - Show client metrics
  help                             - Show help
  exit                             - Exit interactive mode

With --metrics-addr the routing gauges and client counters are served in the
Prometheus text format on /metrics.

Examples:
  bacnet> wirtn
  bacnet> use-router 192.168.1.20 10 11
  bacnet> routing-table`,

	RunE: runInteractive,
}

func init() {
	interactiveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9110)")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if metricsAddr != "" {
		srv := serveMetrics(s)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Println("BACnet Interactive Shell")
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	f := newFormatter()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			return nil
		}

		fmt.Print("bacnet> ")

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := strings.ToLower(parts[0])

		var cmdErr error
		switch command {
		case "exit", "quit", "q":
			fmt.Println("Goodbye!")
			return nil

		case "help", "?":
			printInteractiveHelp()

		case "scan":
			cmdErr = runInteractiveScan(ctx, s, f, parts[1:])

		case "discover":
			var found map[string]*routing.DiscoveredDevice
			found, cmdErr = s.routing.Discover(ctx, routing.WithDiscoverTimeout(requestTimeout()))
			if cmdErr == nil {
				cmdErr = printDiscovered(f, found)
			}

		case "wirtn":
			cmdErr = runInteractiveWirtn(ctx, s, f, parts[1:])

		case "irt":
			var dest *bacnet.Address
			if len(parts) > 1 {
				addr, err := bacnet.ParseAddress(parts[1])
				if err != nil {
					cmdErr = err
					break
				}
				dest = &addr
			}
			if cmdErr = initAndWait(ctx, s, dest, 2*time.Second); cmdErr == nil {
				cmdErr = printRoutingTable(f, s.routing)
			}

		case "winn":
			var network uint16
			if network, cmdErr = s.routing.WhatIsNetworkNumber(ctx); cmdErr == nil {
				if network == 0 {
					fmt.Println("Network number unknown")
				} else {
					fmt.Printf("Local network: %d\n", network)
				}
			}

		case "use-router":
			cmdErr = runInteractiveUseRouter(ctx, s, parts[1:])

		case "routing-table", "rt":
			cmdErr = printRoutingTable(f, s.routing)

		case "networks":
			fmt.Printf("Known networks: %v\n", s.routing.KnownNetworks())

		case "reset-networks":
			s.routing.ResetLearnedNetworks()
			fmt.Println("Learned networks cleared")

		case "metrics":
			runInteractiveMetrics(s.client)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", command)
		}

		if cmdErr != nil {
			fmt.Printf("Error: %v\n", cmdErr)
		}
	}

	return nil
}

// serveMetrics exposes the routing collector on /metrics
func serveMetrics(s *session) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		routing.NewCollector(s.routing, s.client.Metrics()),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", metricsAddr))
	return srv
}

func printInteractiveHelp() {
	fmt.Println(`
Available commands:
  scan [network]                  Discover devices (local network by default)
  discover                        Explore every reachable network
  wirtn [network]                 Ask which routers reach a network
  irt [address]                   Request routing tables from routers
  winn                            Ask for the local network number
  use-router <address> <net>...   Register a router to remote networks
  routing-table                   Show the routing table (alias: rt)
  networks                        Show the learned networks
  reset-networks                  Forget the learned networks
  metrics                         Show client metrics
  help                            Show this help message
  exit                            Exit interactive mode

Address format:
  192.168.1.20        local station (port 47808)
  192.168.1.20:47809  local station with port
  2:5                 station 5 on network 2
  2:*                 broadcast on network 2
  *                   local broadcast
  *:*                 global broadcast`)
}

func runInteractiveScan(ctx context.Context, s *session, f *Formatter, args []string) error {
	opts := []bacnet.DiscoverOption{bacnet.WithDiscoveryTimeout(requestTimeout())}
	if len(args) > 0 {
		network, err := parseNetwork(args[0])
		if err != nil {
			return err
		}
		opts = append(opts, bacnet.WithTargetNetwork(network))
	}

	fmt.Println("Scanning for devices...")

	devices, err := s.client.WhoIs(ctx, opts...)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}
	return printDevices(f, devices)
}

func runInteractiveWirtn(ctx context.Context, s *session, f *Formatter, args []string) error {
	var opts []routing.RequestOption
	if len(args) > 0 {
		network, err := parseNetwork(args[0])
		if err != nil {
			return err
		}
		opts = append(opts, routing.WithNetwork(network))
	}

	networks, err := s.routing.WhoIsRouterToNetwork(ctx, opts...)
	if err != nil {
		return err
	}
	if len(networks) == 0 {
		fmt.Println("No router answered")
		return nil
	}
	return printNetworks(f, networks)
}

func runInteractiveUseRouter(ctx context.Context, s *session, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: use-router <address> <network>...")
	}

	cfg := routing.RouterConfig{Address: args[0]}
	for _, arg := range args[1:] {
		network, err := parseNetwork(arg)
		if err != nil {
			return err
		}
		cfg.Networks = append(cfg.Networks, network)
	}

	if err := s.routing.UseRouter(ctx, cfg); err != nil {
		return err
	}

	fmt.Printf("Known networks: %v\n", s.routing.KnownNetworks())
	return nil
}

func runInteractiveMetrics(client *bacnet.Client) {
	m := client.Metrics().Snapshot()

	fmt.Println("\nClient Metrics:")
	fmt.Printf("  Uptime:                 %s\n", m.Uptime.Round(time.Second))
	fmt.Printf("  Requests Sent:          %d\n", m.RequestsSent)
	fmt.Printf("  Requests Failed:        %d\n", m.RequestsFailed)
	fmt.Printf("  Requests Timed Out:     %d\n", m.RequestsTimedOut)
	fmt.Printf("  Packets Received:       %d\n", m.PacketsReceived)
	fmt.Printf("  Packets Dropped:        %d\n", m.PacketsDropped)
	fmt.Printf("  Devices Discovered:     %d\n", m.DevicesDiscovered)
	fmt.Printf("  I-Am-Router Received:   %d\n", m.IAmRouterReceived)
	fmt.Printf("  Routing Table Acks:     %d\n", m.RoutingTableAcks)
	fmt.Printf("  Router Status Updates:  %d\n", m.RouterStatusUpdates)
	fmt.Printf("  Rejects To Network:     %d\n", m.RejectsToNetwork)
	fmt.Printf("  Routed Sends:           %d\n", m.RoutedSends)
	fmt.Printf("  Bytes Sent:             %d\n", m.BytesSent)
	fmt.Printf("  Bytes Received:         %d\n", m.BytesReceived)

	if m.LatencyStats.Count > 0 {
		fmt.Printf("  Avg Latency:            %s\n", m.LatencyStats.Avg.Round(time.Microsecond))
		fmt.Printf("  Min Latency:            %s\n", m.LatencyStats.Min.Round(time.Microsecond))
		fmt.Printf("  Max Latency:            %s\n", m.LatencyStats.Max.Round(time.Microsecond))
	}
	fmt.Println()
}
