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

package bacnet

import (
	"slices"
	"sort"
	"sync"
)

// PathKey identifies a path: the network a router sits on and the network it
// reaches. A source network of 0 means the local network.
type PathKey struct {
	SNet uint16 `json:"snet" yaml:"snet"`
	DNet uint16 `json:"dnet" yaml:"dnet"`
}

// PathInfo is the best known router for a path and its status
type PathInfo struct {
	Address Address
	Status  PathStatus
}

// RouterEntry is a snapshot of one router_dnets entry
type RouterEntry struct {
	SNet     uint16
	Address  Address
	Networks []uint16
}

// PathEntry is a snapshot of one path_info entry
type PathEntry struct {
	PathKey
	PathInfo
}

type routerKey struct {
	snet uint16
	addr string
}

type routerDNets struct {
	addr  Address
	dnets map[uint16]struct{}
}

// RouterInfoCache records which routers reach which networks. It holds two
// maps: (snet, router) -> destination networks, and (snet, dnet) -> (router,
// status). Entries are only replaced by explicit writes.
type RouterInfoCache struct {
	mu          sync.RWMutex
	routerDNets map[routerKey]*routerDNets
	pathInfo    map[PathKey]PathInfo
}

// NewRouterInfoCache creates an empty cache
func NewRouterInfoCache() *RouterInfoCache {
	return &RouterInfoCache{
		routerDNets: make(map[routerKey]*routerDNets),
		pathInfo:    make(map[PathKey]PathInfo),
	}
}

// UpdateRouterReferences records that the router at addr on snet reaches
// dnets. A network previously claimed by another router on the same snet is
// taken away from it; the other router's entry stays, possibly empty. A path
// to a moved network is repointed at addr and marked available.
func (c *RouterInfoCache) UpdateRouterReferences(snet uint16, addr Address, dnets []uint16) {
	key := routerKey{snet: snet, addr: addr.String()}

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, entry := range c.routerDNets {
		if k.snet != snet || k == key {
			continue
		}
		for _, dnet := range dnets {
			delete(entry.dnets, dnet)
		}
	}

	for _, dnet := range dnets {
		pk := PathKey{SNet: snet, DNet: dnet}
		if info, ok := c.pathInfo[pk]; ok && !info.Address.Equal(addr) {
			c.pathInfo[pk] = PathInfo{Address: addr, Status: PathAvailable}
		}
	}

	entry, ok := c.routerDNets[key]
	if !ok {
		entry = &routerDNets{addr: addr, dnets: make(map[uint16]struct{}, len(dnets))}
		c.routerDNets[key] = entry
	}
	for _, dnet := range dnets {
		entry.dnets[dnet] = struct{}{}
	}
}

// RouterDNets returns the networks known to be reachable through a router
func (c *RouterInfoCache) RouterDNets(snet uint16, addr Address) ([]uint16, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.routerDNets[routerKey{snet: snet, addr: addr.String()}]
	if !ok {
		return nil, false
	}
	return sortedNetworks(entry.dnets), true
}

// SetPathInfo records the router used to reach dnet from snet
func (c *RouterInfoCache) SetPathInfo(snet, dnet uint16, addr Address, status PathStatus) {
	c.mu.Lock()
	c.pathInfo[PathKey{SNet: snet, DNet: dnet}] = PathInfo{Address: addr, Status: status}
	c.mu.Unlock()
}

// PathInfo returns the router used to reach dnet from snet
func (c *RouterInfoCache) PathInfo(snet, dnet uint16) (PathInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.pathInfo[PathKey{SNet: snet, DNet: dnet}]
	return info, ok
}

// UpdateRouterStatus sets the status of the paths from snet owned by the
// router at addr. With no dnets every such path is updated. It returns the
// number of paths changed.
func (c *RouterInfoCache) UpdateRouterStatus(snet uint16, addr Address, dnets []uint16, status PathStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for key, info := range c.pathInfo {
		if key.SNet != snet || !info.Address.Equal(addr) {
			continue
		}
		if len(dnets) > 0 && !slices.Contains(dnets, key.DNet) {
			continue
		}
		if info.Status != status {
			info.Status = status
			c.pathInfo[key] = info
			updated++
		}
	}
	return updated
}

// RouterFor picks the router to use for dnet: an available path first, then
// the lowest source network.
func (c *RouterInfoCache) RouterFor(dnet uint16) (PathInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		best    PathInfo
		bestKey PathKey
		found   bool
	)
	for key, info := range c.pathInfo {
		if key.DNet != dnet {
			continue
		}
		switch {
		case !found:
		case info.Status == PathAvailable && best.Status != PathAvailable:
		case (info.Status == PathAvailable) == (best.Status == PathAvailable) && key.SNet < bestKey.SNet:
		default:
			continue
		}
		best, bestKey, found = info, key, true
	}
	return best, found
}

// Routers returns the router_dnets map ordered by source network then address
func (c *RouterInfoCache) Routers() []RouterEntry {
	c.mu.RLock()
	entries := c.routersLocked()
	c.mu.RUnlock()
	sortRouters(entries)
	return entries
}

// Paths returns the path_info map ordered by source then destination network
func (c *RouterInfoCache) Paths() []PathEntry {
	c.mu.RLock()
	entries := c.pathsLocked()
	c.mu.RUnlock()
	sortPaths(entries)
	return entries
}

// Snapshot returns both maps as read under a single lock
func (c *RouterInfoCache) Snapshot() ([]RouterEntry, []PathEntry) {
	c.mu.RLock()
	routers := c.routersLocked()
	paths := c.pathsLocked()
	c.mu.RUnlock()

	sortRouters(routers)
	sortPaths(paths)
	return routers, paths
}

func (c *RouterInfoCache) routersLocked() []RouterEntry {
	entries := make([]RouterEntry, 0, len(c.routerDNets))
	for key, entry := range c.routerDNets {
		entries = append(entries, RouterEntry{
			SNet:     key.snet,
			Address:  entry.addr,
			Networks: sortedNetworks(entry.dnets),
		})
	}
	return entries
}

func (c *RouterInfoCache) pathsLocked() []PathEntry {
	entries := make([]PathEntry, 0, len(c.pathInfo))
	for key, info := range c.pathInfo {
		entries = append(entries, PathEntry{PathKey: key, PathInfo: info})
	}
	return entries
}

func sortRouters(entries []RouterEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SNet != entries[j].SNet {
			return entries[i].SNet < entries[j].SNet
		}
		return entries[i].Address.String() < entries[j].Address.String()
	})
}

func sortPaths(entries []PathEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SNet != entries[j].SNet {
			return entries[i].SNet < entries[j].SNet
		}
		return entries[i].DNet < entries[j].DNet
	})
}

// Reset drops every entry
func (c *RouterInfoCache) Reset() {
	c.mu.Lock()
	c.routerDNets = make(map[routerKey]*routerDNets)
	c.pathInfo = make(map[PathKey]PathInfo)
	c.mu.Unlock()
}

func sortedNetworks(set map[uint16]struct{}) []uint16 {
	networks := make([]uint16, 0, len(set))
	for n := range set {
		networks = append(networks, n)
	}
	slices.Sort(networks)
	return networks
}
