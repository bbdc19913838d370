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
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AddressType describes what an Address points at
type AddressType uint8

const (
	AddressNull AddressType = iota
	AddressLocalBroadcast
	AddressLocalStation
	AddressRemoteBroadcast
	AddressRemoteStation
	AddressGlobalBroadcast
)

func (t AddressType) String() string {
	switch t {
	case AddressNull:
		return "null"
	case AddressLocalBroadcast:
		return "local-broadcast"
	case AddressLocalStation:
		return "local-station"
	case AddressRemoteBroadcast:
		return "remote-broadcast"
	case AddressRemoteStation:
		return "remote-station"
	case AddressGlobalBroadcast:
		return "global-broadcast"
	default:
		return fmt.Sprintf("address-type(%d)", uint8(t))
	}
}

// Address represents a BACnet address: a MAC on the local network, or a
// network number plus MAC on a remote one. Addresses are values; do not
// mutate Addr after construction.
type Address struct {
	Type AddressType
	Net  uint16
	Addr []byte
}

// LocalBroadcast returns the local broadcast address
func LocalBroadcast() Address {
	return Address{Type: AddressLocalBroadcast}
}

// GlobalBroadcast returns the global broadcast address
func GlobalBroadcast() Address {
	return Address{Type: AddressGlobalBroadcast, Net: GlobalNetwork}
}

// RemoteBroadcast returns the broadcast address of a remote network
func RemoteBroadcast(network uint16) Address {
	return Address{Type: AddressRemoteBroadcast, Net: network}
}

// LocalStation returns a station address on the local network
func LocalStation(mac []byte) Address {
	return Address{Type: AddressLocalStation, Addr: append([]byte(nil), mac...)}
}

// RemoteStation returns a station address on a remote network
func RemoteStation(network uint16, mac []byte) Address {
	return Address{Type: AddressRemoteStation, Net: network, Addr: append([]byte(nil), mac...)}
}

// IPAddress builds a local station address from a UDP endpoint
func IPAddress(addr *net.UDPAddr) Address {
	return LocalStation(encodeIPMAC(addr))
}

// ParseAddress parses the textual forms accepted by the CLI and configuration:
//
//	*                  local broadcast
//	*:*                global broadcast
//	2:*                remote broadcast on network 2
//	192.168.1.10       BACnet/IP station (port 47808)
//	192.168.1.10:47809 BACnet/IP station on another port
//	5, 0x0a0b          MS/TP or arbitrary MAC
//	2:5, 2:10.0.0.1    any station form on remote network 2
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, newAddressError(s, "empty address")
	}

	switch s {
	case "*":
		return LocalBroadcast(), nil
	case "*:*":
		return GlobalBroadcast(), nil
	}

	// A network prefix never contains a dot, which keeps "ip:port" apart
	// from "net:mac".
	if i := strings.IndexByte(s, ':'); i > 0 && !strings.Contains(s[:i], ".") && !strings.HasPrefix(s, "0x") {
		network, err := parseNetworkNumber(s[:i])
		if err != nil {
			return Address{}, newAddressError(s, err.Error())
		}
		rest := s[i+1:]
		if rest == "*" {
			return RemoteBroadcast(network), nil
		}
		mac, err := parseMAC(rest)
		if err != nil {
			return Address{}, newAddressError(s, err.Error())
		}
		return RemoteStation(network, mac), nil
	}

	mac, err := parseMAC(s)
	if err != nil {
		return Address{}, newAddressError(s, err.Error())
	}
	return LocalStation(mac), nil
}

// MustParseAddress is like ParseAddress but panics on error
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func parseNetworkNumber(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid network number %q", s)
	}
	if n == 0 || n >= uint64(GlobalNetwork) {
		return 0, fmt.Errorf("network number %d out of range 1-65534", n)
	}
	return uint16(n), nil
}

func parseMAC(s string) ([]byte, error) {
	switch {
	case s == "":
		return nil, fmt.Errorf("empty MAC")
	case strings.HasPrefix(s, "0x"):
		mac, err := hex.DecodeString(s[2:])
		if err != nil || len(mac) == 0 {
			return nil, fmt.Errorf("invalid hex MAC %q", s)
		}
		return mac, nil
	case strings.Contains(s, "."):
		return parseIPMAC(s)
	default:
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid MAC %q", s)
		}
		return []byte{byte(n)}, nil
	}
}

func parseIPMAC(s string) ([]byte, error) {
	host, port := s, DefaultPort
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host = s[:i]
		p, err := strconv.ParseUint(s[i+1:], 10, 16)
		if err != nil || p == 0 {
			return nil, fmt.Errorf("invalid port in %q", s)
		}
		port = int(p)
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", host)
	}
	return encodeIPMAC(&net.UDPAddr{IP: ip, Port: port}), nil
}

func encodeIPMAC(addr *net.UDPAddr) []byte {
	mac := make([]byte, 6)
	copy(mac, addr.IP.To4())
	binary.BigEndian.PutUint16(mac[4:], uint16(addr.Port))
	return mac
}

func formatMAC(mac []byte) string {
	switch len(mac) {
	case 1:
		return strconv.Itoa(int(mac[0]))
	case 6:
		ip := net.IP(mac[:4]).String()
		port := binary.BigEndian.Uint16(mac[4:])
		if port == DefaultPort {
			return ip
		}
		return fmt.Sprintf("%s:%d", ip, port)
	default:
		return "0x" + hex.EncodeToString(mac)
	}
}

// String renders the address in the form ParseAddress accepts
func (a Address) String() string {
	switch a.Type {
	case AddressLocalBroadcast:
		return "*"
	case AddressGlobalBroadcast:
		return "*:*"
	case AddressRemoteBroadcast:
		return fmt.Sprintf("%d:*", a.Net)
	case AddressLocalStation:
		return formatMAC(a.Addr)
	case AddressRemoteStation:
		return fmt.Sprintf("%d:%s", a.Net, formatMAC(a.Addr))
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Equal reports whether two addresses denote the same endpoint
func (a Address) Equal(b Address) bool {
	return a.Type == b.Type && a.Net == b.Net && bytes.Equal(a.Addr, b.Addr)
}

// IsStation reports whether the address names a single device
func (a Address) IsStation() bool {
	return a.Type == AddressLocalStation || a.Type == AddressRemoteStation
}

// IsRemote reports whether reaching the address requires a router
func (a Address) IsRemote() bool {
	return a.Type == AddressRemoteStation || a.Type == AddressRemoteBroadcast
}

// UDPAddr returns the BACnet/IP endpoint of a local station with a 6-byte MAC
func (a Address) UDPAddr() (*net.UDPAddr, bool) {
	if a.Type != AddressLocalStation || len(a.Addr) != 6 {
		return nil, false
	}
	return &net.UDPAddr{
		IP:   net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]),
		Port: int(binary.BigEndian.Uint16(a.Addr[4:])),
	}, true
}
