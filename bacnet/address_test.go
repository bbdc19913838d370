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
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input  string
		want   Address
		render string
	}{
		{"*", LocalBroadcast(), "*"},
		{"*:*", GlobalBroadcast(), "*:*"},
		{"2:*", RemoteBroadcast(2), "2:*"},
		{"5", LocalStation([]byte{5}), "5"},
		{"2:5", RemoteStation(2, []byte{5}), "2:5"},
		{"0x0a0b", LocalStation([]byte{0x0a, 0x0b}), "0x0a0b"},
		{"192.168.1.10", LocalStation([]byte{192, 168, 1, 10, 0xBA, 0xC0}), "192.168.1.10"},
		{"192.168.1.10:47809", LocalStation([]byte{192, 168, 1, 10, 0xBA, 0xC1}), "192.168.1.10:47809"},
		{"3:10.0.0.1", RemoteStation(3, []byte{10, 0, 0, 1, 0xBA, 0xC0}), "3:10.0.0.1"},
		{" 7:0x01 ", RemoteStation(7, []byte{1}), "7:1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %+v", got)
			assert.Equal(t, tt.render, got.String())
		})
	}
}

func TestParseAddressInvalid(t *testing.T) {
	inputs := []string{
		"",
		"abc",
		"256",
		"0:5",
		"65535:5",
		"70000:5",
		"2:",
		":5",
		"0xzz",
		"300.1.1.1",
		"10.0.0.1:0",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseAddress(input)
			require.Error(t, err)
			assert.True(t, IsInvalidAddress(err))

			var addrErr *AddressError
			require.ErrorAs(t, err, &addrErr)
			assert.Equal(t, input, addrErr.Input)
		})
	}
}

func TestAddressRoundTrip(t *testing.T) {
	for _, s := range []string{"*", "*:*", "12:*", "12:7", "10.1.2.3", "10.1.2.3:47900", "4:0x0102030405"} {
		addr := MustParseAddress(s)
		again, err := ParseAddress(addr.String())
		require.NoError(t, err)
		assert.True(t, addr.Equal(again), s)
	}
}

func TestAddressPredicates(t *testing.T) {
	assert.True(t, MustParseAddress("5").IsStation())
	assert.True(t, MustParseAddress("2:5").IsStation())
	assert.False(t, MustParseAddress("2:*").IsStation())
	assert.False(t, LocalBroadcast().IsStation())

	assert.True(t, MustParseAddress("2:5").IsRemote())
	assert.True(t, MustParseAddress("2:*").IsRemote())
	assert.False(t, MustParseAddress("10.0.0.1").IsRemote())
	assert.False(t, GlobalBroadcast().IsRemote())
}

func TestAddressUDPAddr(t *testing.T) {
	udp, ok := MustParseAddress("192.168.1.20:47809").UDPAddr()
	require.True(t, ok)
	assert.Equal(t, "192.168.1.20:47809", udp.String())

	_, ok = MustParseAddress("5").UDPAddr()
	assert.False(t, ok)
	_, ok = MustParseAddress("2:10.0.0.1").UDPAddr()
	assert.False(t, ok)

	addr := IPAddress(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 9), Port: DefaultPort})
	assert.Equal(t, "10.0.0.9", addr.String())
}

func TestAddressJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Router Address `json:"router"`
	}{MustParseAddress("2:5")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"router":"2:5"}`, string(data))

	var decoded struct {
		Router Address `json:"router"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"router":"10.0.0.1"}`), &decoded))
	assert.Equal(t, "10.0.0.1", decoded.Router.String())

	err = json.Unmarshal([]byte(`{"router":"bogus"}`), &decoded)
	assert.True(t, IsInvalidAddress(err))
}
