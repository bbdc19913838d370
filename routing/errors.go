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

import "errors"

var (
	// ErrInconsistentCache is returned when a path references a router the
	// router information cache does not know.
	ErrInconsistentCache = errors.New("routing: path references unknown router")

	// ErrInvalidNetwork is returned for network numbers that cannot be a
	// routing destination (0 and 65535).
	ErrInvalidNetwork = errors.New("routing: invalid network number")
)
