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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/routing"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "edgeo-bacnet",
	Short: "BACnet/IP router and network discovery CLI",
	Long: `edgeo-bacnet is a command-line tool for exploring multi-network BACnet/IP
installations: it discovers devices and routers, registers routers to remote
networks and shows the resulting routing table.

Examples:
  # Discover devices on the local network
  edgeo-bacnet scan

  # Explore every reachable network
  edgeo-bacnet discover

  # Ask which routers reach network 10
  edgeo-bacnet wirtn 10

  # Route network 10 and 11 through a router, then show the table
  edgeo-bacnet use-router 192.168.1.20 10 11
  edgeo-bacnet routing-table`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger
		logLevel := slog.LevelInfo
		if viper.GetBool("verbose") {
			logLevel = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))

		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.edgeo-bacnet.yaml)")
	flags.DurationP("timeout", "t", 3*time.Second, "Request timeout")
	flags.StringP("output", "o", "table", "Output format (table, json, csv, yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.String("local", "", "Local address to bind to (e.g., 0.0.0.0:47808)")
	flags.String("broadcast", "255.255.255.255", "Broadcast address of the local subnet")
	flags.Uint16("local-network", 0, "BACnet network number of the local network (0 = unknown)")
	flags.String("bbmd", "", "BBMD address for foreign device registration")
	flags.Int("bbmd-port", bacnet.DefaultPort, "BBMD port")
	flags.Duration("bbmd-ttl", 60*time.Second, "BBMD registration TTL")

	// Bind flags to viper
	for _, name := range []string{"timeout", "output", "verbose", "local", "broadcast", "local-network", "bbmd", "bbmd-port", "bbmd-ttl"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	// Add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(wirtnCmd)
	rootCmd.AddCommand(irtCmd)
	rootCmd.AddCommand(winnCmd)
	rootCmd.AddCommand(useRouterCmd)
	rootCmd.AddCommand(routingTableCmd)
	rootCmd.AddCommand(interactiveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".edgeo-bacnet")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BACNET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func requestTimeout() time.Duration {
	return viper.GetDuration("timeout")
}

// signalContext returns a context cancelled on interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newFormatter() *Formatter {
	return NewFormatter(viper.GetString("output"))
}

// createClient creates a BACnet client with current configuration
func createClient() (*bacnet.Client, error) {
	opts := []bacnet.Option{
		bacnet.WithTimeout(requestTimeout()),
		bacnet.WithBroadcastAddress(viper.GetString("broadcast")),
		bacnet.WithNetworkNumber(viper.GetUint16("local-network")),
		bacnet.WithLogger(logger),
	}

	if local := viper.GetString("local"); local != "" {
		opts = append(opts, bacnet.WithLocalAddress(local))
	}

	if bbmd := viper.GetString("bbmd"); bbmd != "" {
		opts = append(opts, bacnet.WithBBMD(bbmd, viper.GetInt("bbmd-port"), viper.GetDuration("bbmd-ttl")))
	}

	return bacnet.NewClient(opts...)
}

// configuredRouters returns the routers listed under "routers" in the
// configuration file
func configuredRouters() ([]routing.RouterConfig, error) {
	var routers []routing.RouterConfig
	if err := viper.UnmarshalKey("routers", &routers); err != nil {
		return nil, fmt.Errorf("decode routers: %w", err)
	}
	return routers, nil
}

// session is a connected client and the routing service on top of it
type session struct {
	client  *bacnet.Client
	routing *routing.Service
}

// openSession connects a client and registers the configured routers
func openSession(ctx context.Context) (*session, error) {
	client, err := createClient()
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &session{
		client: client,
		routing: routing.NewService(client,
			routing.WithDefaultTimeout(requestTimeout()),
			routing.WithProbeTimeout(requestTimeout()),
			routing.WithLogger(logger),
		),
	}

	routers, err := configuredRouters()
	if err != nil {
		client.Close()
		return nil, err
	}
	if len(routers) > 0 {
		if err := s.routing.UseRouters(ctx, routers); err != nil {
			logger.Warn("some configured routers were not registered", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("edgeo-bacnet version 1.1.0")
	},
}
