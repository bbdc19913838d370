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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeo-scada/bacnet/bacnet"
)

var (
	scanTimeout   time.Duration
	scanLowLimit  uint32
	scanHighLimit uint32
	scanNetwork   uint16
	scanAddress   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BACnet devices on the network",
	Long: `Scan discovers BACnet devices by sending a Who-Is request.

Examples:
  # Discover all devices on the local network
  edgeo-bacnet scan

  # Discover devices with instance IDs 1-100
  edgeo-bacnet scan --low 1 --high 100

  # Discover devices on remote network 10
  edgeo-bacnet scan --net 10

  # Probe a single station behind a router
  edgeo-bacnet scan --address 2:5`,

	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 5*time.Second, "Discovery timeout")
	scanCmd.Flags().Uint32Var(&scanLowLimit, "low", 0, "Low limit for device instance range (0 = no limit)")
	scanCmd.Flags().Uint32Var(&scanHighLimit, "high", 0, "High limit for device instance range (0 = no limit)")
	scanCmd.Flags().Uint16Var(&scanNetwork, "net", 0, "Target network number (0 = local)")
	scanCmd.Flags().StringVar(&scanAddress, "address", "", "Send the Who-Is to this address instead of broadcasting")
}

func runScan(cmd *cobra.Command, args []string) error {
	discoverOpts := []bacnet.DiscoverOption{
		bacnet.WithDiscoveryTimeout(scanTimeout),
	}

	if scanLowLimit > 0 || scanHighLimit > 0 {
		high := scanHighLimit
		if high == 0 {
			high = bacnet.MaxInstance
		}
		discoverOpts = append(discoverOpts, bacnet.WithDeviceRange(scanLowLimit, high))
	}

	switch {
	case scanAddress != "":
		addr, err := bacnet.ParseAddress(scanAddress)
		if err != nil {
			return err
		}
		discoverOpts = append(discoverOpts, bacnet.WithTargetAddress(addr))
	case scanNetwork > 0:
		discoverOpts = append(discoverOpts, bacnet.WithTargetNetwork(scanNetwork))
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout()+scanTimeout)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(os.Stderr, "Scanning for BACnet devices...")

	devices, err := s.client.WhoIs(ctx, discoverOpts...)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "No devices found")
		return nil
	}

	return printDevices(newFormatter(), devices)
}

type deviceRow struct {
	DeviceID     uint32         `json:"device_id" yaml:"device_id"`
	Address      bacnet.Address `json:"address" yaml:"address"`
	VendorID     uint16         `json:"vendor_id" yaml:"vendor_id"`
	Segmentation string         `json:"segmentation" yaml:"segmentation"`
	MaxAPDU      uint16         `json:"max_apdu" yaml:"max_apdu"`
}

func printDevices(f *Formatter, devices []*bacnet.DeviceInfo) error {
	out := make([]deviceRow, 0, len(devices))
	rows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		out = append(out, deviceRow{
			DeviceID:     dev.ObjectID.Instance,
			Address:      dev.Address,
			VendorID:     dev.VendorID,
			Segmentation: dev.Segmentation.String(),
			MaxAPDU:      dev.MaxAPDULength,
		})
		rows = append(rows, []string{
			strconv.FormatUint(uint64(dev.ObjectID.Instance), 10),
			dev.Address.String(),
			strconv.FormatUint(uint64(dev.VendorID), 10),
			dev.Segmentation.String(),
			strconv.FormatUint(uint64(dev.MaxAPDULength), 10),
		})
	}

	return f.Print(out, []string{"DEVICE ID", "ADDRESS", "VENDOR", "SEGMENTATION", "MAX APDU"}, rows)
}
