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

	"github.com/edgeo-scada/bacnet/bacnet"
	"github.com/edgeo-scada/bacnet/routing"
)

var winnDest string

var winnCmd = &cobra.Command{
	Use:   "winn",
	Short: "Send What-Is-Network-Number",
	Long: `Winn asks the devices on the local network for the local network number.

Examples:
  edgeo-bacnet winn
  edgeo-bacnet winn --dest 192.168.1.20`,

	Args: cobra.NoArgs,
	RunE: runWinn,
}

func init() {
	winnCmd.Flags().StringVar(&winnDest, "dest", "", "Ask this local station instead of broadcasting")
}

func runWinn(cmd *cobra.Command, args []string) error {
	var opts []routing.RequestOption
	if winnDest != "" {
		dest, err := bacnet.ParseAddress(winnDest)
		if err != nil {
			return err
		}
		opts = append(opts, routing.WithDestination(dest))
	}

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	network, err := s.routing.WhatIsNetworkNumber(ctx, opts...)
	if err != nil {
		return err
	}

	if network == 0 {
		fmt.Fprintln(os.Stderr, "Network number unknown")
		return nil
	}

	f := newFormatter()
	if f.format == FormatTable || f.format == "" {
		f.PrintKeyValue(map[string]interface{}{"Network": network}, []string{"Network"})
		return nil
	}
	return f.Print(struct {
		Network uint16 `json:"network" yaml:"network"`
	}{network}, []string{"NETWORK"}, [][]string{{fmt.Sprint(network)}})
}
