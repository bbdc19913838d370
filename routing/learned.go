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
	"slices"
	"sync"
)

// LearnedNetworks is the set of network numbers learned during a session
type LearnedNetworks struct {
	mu       sync.RWMutex
	networks map[uint16]struct{}
}

// NewLearnedNetworks creates an empty set
func NewLearnedNetworks() *LearnedNetworks {
	return &LearnedNetworks{networks: make(map[uint16]struct{})}
}

// Add adds networks to the set
func (l *LearnedNetworks) Add(networks ...uint16) {
	l.mu.Lock()
	for _, n := range networks {
		l.networks[n] = struct{}{}
	}
	l.mu.Unlock()
}

// Contains reports whether network has been learned
func (l *LearnedNetworks) Contains(network uint16) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.networks[network]
	return ok
}

// Len returns the number of learned networks
func (l *LearnedNetworks) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.networks)
}

// Sorted returns the learned networks in ascending order
func (l *LearnedNetworks) Sorted() []uint16 {
	l.mu.RLock()
	networks := make([]uint16, 0, len(l.networks))
	for n := range l.networks {
		networks = append(networks, n)
	}
	l.mu.RUnlock()

	slices.Sort(networks)
	return networks
}

// Reset empties the set
func (l *LearnedNetworks) Reset() {
	l.mu.Lock()
	l.networks = make(map[uint16]struct{})
	l.mu.Unlock()
}
