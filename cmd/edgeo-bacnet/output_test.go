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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type networksOut struct {
	Networks []uint16 `json:"networks" yaml:"networks"`
}

func TestFormatterPrint(t *testing.T) {
	v := networksOut{Networks: []uint16{10, 11}}
	headers := []string{"NETWORK"}
	rows := [][]string{{"10"}, {"11"}}

	tests := []struct {
		format string
		want   string
	}{
		{"json", "{\n  \"networks\": [\n    10,\n    11\n  ]\n}\n"},
		{"yaml", "networks:\n  - 10\n  - 11\n"},
		{"csv", "NETWORK\n10\n11\n"},
		{"table", "NETWORK \n------- \n10      \n11      \n"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewFormatter(tt.format)
			f.SetWriter(&buf)

			require.NoError(t, f.Print(v, headers, rows))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestFormatterUnknownFormat(t *testing.T) {
	f := NewFormatter("xml")
	f.SetWriter(&bytes.Buffer{})
	assert.Error(t, f.Print(nil, nil, nil))
}

func TestJoinNetworks(t *testing.T) {
	assert.Equal(t, "", joinNetworks(nil))
	assert.Equal(t, "10", joinNetworks([]uint16{10}))
	assert.Equal(t, "10 11 12", joinNetworks([]uint16{10, 11, 12}))
}

func TestParseNetwork(t *testing.T) {
	n, err := parseNetwork("65534")
	require.NoError(t, err)
	assert.Equal(t, uint16(65534), n)

	_, err = parseNetwork("65536")
	assert.Error(t, err)

	_, err = parseNetwork("ten")
	assert.Error(t, err)
}
