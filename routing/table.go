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
	"fmt"

	"github.com/edgeo-scada/bacnet/bacnet"
)

// PathObservation is one path recorded for a router and its status
type PathObservation struct {
	Path   bacnet.PathKey    `json:"path" yaml:"path"`
	Status bacnet.PathStatus `json:"status" yaml:"status"`
}

// RouterRecord is the topology view of one router
type RouterRecord struct {
	SourceNetwork       uint16            `json:"source_network" yaml:"source_network"`
	Address             bacnet.Address    `json:"address" yaml:"address"`
	DestinationNetworks []uint16          `json:"destination_networks" yaml:"destination_networks"`
	Paths               []PathObservation `json:"paths" yaml:"paths"`
}

// RoutingTable folds the router information cache into one record per
// router, keyed by router address. It is rebuilt on every call.
func (s *Service) RoutingTable() (map[string]*RouterRecord, error) {
	routers, paths := s.engine.RouterInfoCache().Snapshot()
	return buildRoutingTable(routers, paths)
}

// buildRoutingTable projects the two cache maps. When one address is known
// on several source networks the last entry in order wins.
func buildRoutingTable(routers []bacnet.RouterEntry, paths []bacnet.PathEntry) (map[string]*RouterRecord, error) {
	table := make(map[string]*RouterRecord, len(routers))

	for _, r := range routers {
		table[r.Address.String()] = &RouterRecord{
			SourceNetwork:       r.SNet,
			Address:             r.Address,
			DestinationNetworks: r.Networks,
			Paths:               []PathObservation{},
		}
	}

	for _, p := range paths {
		key := p.Address.String()
		record, ok := table[key]
		if !ok {
			return nil, fmt.Errorf("path %d->%d via %s: %w", p.SNet, p.DNet, key, ErrInconsistentCache)
		}
		record.Paths = append(record.Paths, PathObservation{Path: p.PathKey, Status: p.Status})
	}

	return table, nil
}
