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
	"encoding/binary"
	"fmt"
)

// BVLC Header (BACnet Virtual Link Control)
type BVLCHeader struct {
	Type     BVLCType
	Function BVLCFunction
	Length   uint16
}

// EncodeBVLC encodes a BVLC header
func EncodeBVLC(function BVLCFunction, npduLength int) []byte {
	totalLength := 4 + npduLength // BVLC header is 4 bytes
	buf := make([]byte, 4)
	buf[0] = byte(BVLCTypeBACnetIP)
	buf[1] = byte(function)
	binary.BigEndian.PutUint16(buf[2:], uint16(totalLength))
	return buf
}

// DecodeBVLC decodes a BVLC header
func DecodeBVLC(data []byte) (*BVLCHeader, error) {
	if len(data) < 4 {
		return nil, ErrInvalidBVLC
	}
	h := &BVLCHeader{
		Type:     BVLCType(data[0]),
		Function: BVLCFunction(data[1]),
		Length:   binary.BigEndian.Uint16(data[2:4]),
	}
	if h.Type != BVLCTypeBACnetIP {
		return nil, fmt.Errorf("%w: type %02x", ErrInvalidBVLC, uint8(h.Type))
	}
	return h, nil
}

// NPDU (Network Protocol Data Unit)
type NPDU struct {
	Version      uint8
	Control      NPDUControl
	DestNet      uint16
	DestAddr     []byte
	DestHopCount uint8
	SrcNet       uint16
	SrcAddr      []byte
	MessageType  NetworkMessageType
	VendorID     uint16
	Data         []byte
}

// IsNetworkMessage reports whether the NPDU carries a network layer message
func (n *NPDU) IsNetworkMessage() bool {
	return n.Control&NPDUControlNetworkLayerMessage != 0
}

// SetDestination fills the DNET/DADR fields from a remote or global address
func (n *NPDU) SetDestination(dest Address) {
	switch dest.Type {
	case AddressRemoteStation, AddressRemoteBroadcast, AddressGlobalBroadcast:
		n.Control |= NPDUControlDestSpecifier
		n.DestNet = dest.Net
		n.DestAddr = dest.Addr
		if n.DestHopCount == 0 {
			n.DestHopCount = DefaultHopCount
		}
	}
}

// EncodeNPDU encodes the NPDU header. Data is not appended.
func EncodeNPDU(n *NPDU) []byte {
	control := n.Control
	if n.DestNet != 0 {
		control |= NPDUControlDestSpecifier
	}
	if n.SrcNet != 0 {
		control |= NPDUControlSourceSpecifier
	}

	buf := make([]byte, 0, 12+len(n.DestAddr)+len(n.SrcAddr))
	buf = append(buf, 0x01) // Version
	buf = append(buf, byte(control))

	if control&NPDUControlDestSpecifier != 0 {
		buf = binary.BigEndian.AppendUint16(buf, n.DestNet)
		buf = append(buf, byte(len(n.DestAddr)))
		buf = append(buf, n.DestAddr...)
	}
	if control&NPDUControlSourceSpecifier != 0 {
		buf = binary.BigEndian.AppendUint16(buf, n.SrcNet)
		buf = append(buf, byte(len(n.SrcAddr)))
		buf = append(buf, n.SrcAddr...)
	}
	if control&NPDUControlDestSpecifier != 0 {
		buf = append(buf, n.DestHopCount)
	}
	if control&NPDUControlNetworkLayerMessage != 0 {
		buf = append(buf, byte(n.MessageType))
		if n.MessageType >= 0x80 {
			buf = binary.BigEndian.AppendUint16(buf, n.VendorID)
		}
	}
	return buf
}

// DecodeNPDU decodes an NPDU and returns the offset of its payload
func DecodeNPDU(data []byte) (*NPDU, int, error) {
	if len(data) < 2 {
		return nil, 0, ErrInvalidNPDU
	}

	npdu := &NPDU{
		Version: data[0],
		Control: NPDUControl(data[1]),
	}

	if npdu.Version != 0x01 {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidNPDU, npdu.Version)
	}

	offset := 2

	if npdu.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, 0, ErrInvalidNPDU
		}
		npdu.DestNet = binary.BigEndian.Uint16(data[offset:])
		addrLen := int(data[offset+2])
		offset += 3

		if len(data) < offset+addrLen {
			return nil, 0, ErrInvalidNPDU
		}
		npdu.DestAddr = append([]byte(nil), data[offset:offset+addrLen]...)
		offset += addrLen
	}

	if npdu.Control&NPDUControlSourceSpecifier != 0 {
		if len(data) < offset+3 {
			return nil, 0, ErrInvalidNPDU
		}
		npdu.SrcNet = binary.BigEndian.Uint16(data[offset:])
		addrLen := int(data[offset+2])
		offset += 3

		if len(data) < offset+addrLen {
			return nil, 0, ErrInvalidNPDU
		}
		npdu.SrcAddr = append([]byte(nil), data[offset:offset+addrLen]...)
		offset += addrLen
	}

	// Hop count trails the source specifier
	if npdu.Control&NPDUControlDestSpecifier != 0 {
		if len(data) < offset+1 {
			return nil, 0, ErrInvalidNPDU
		}
		npdu.DestHopCount = data[offset]
		offset++
	}

	if npdu.IsNetworkMessage() {
		if len(data) < offset+1 {
			return nil, 0, ErrInvalidNPDU
		}
		npdu.MessageType = NetworkMessageType(data[offset])
		offset++

		// Vendor-specific message types have vendor ID
		if npdu.MessageType >= 0x80 {
			if len(data) < offset+2 {
				return nil, 0, ErrInvalidNPDU
			}
			npdu.VendorID = binary.BigEndian.Uint16(data[offset:])
			offset += 2
		}
	}

	npdu.Data = data[offset:]
	return npdu, offset, nil
}

// EncodeNetworkList encodes a list of 2-octet network numbers, the payload of
// Who-Is-Router-To-Network, I-Am-Router-To-Network and the Router-Busy and
// Router-Available messages.
func EncodeNetworkList(networks []uint16) []byte {
	buf := make([]byte, 0, 2*len(networks))
	for _, n := range networks {
		buf = binary.BigEndian.AppendUint16(buf, n)
	}
	return buf
}

// DecodeNetworkList decodes a list of 2-octet network numbers
func DecodeNetworkList(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: network list has odd length %d", ErrInvalidNPDU, len(data))
	}
	networks := make([]uint16, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		networks = append(networks, binary.BigEndian.Uint16(data[i:]))
	}
	return networks, nil
}

// MaxRoutingTablePorts is the largest port count a routing table payload
// can carry; port info is limited to the same length.
const MaxRoutingTablePorts = 255

// EncodeRoutingTable encodes an Initialize-Routing-Table(-Ack) payload
func EncodeRoutingTable(ports []RoutingTablePort) ([]byte, error) {
	if len(ports) > MaxRoutingTablePorts {
		return nil, fmt.Errorf("%w: %d routing table ports, at most %d", ErrInvalidNPDU, len(ports), MaxRoutingTablePorts)
	}
	buf := []byte{byte(len(ports))}
	for _, p := range ports {
		if len(p.Info) > MaxRoutingTablePorts {
			return nil, fmt.Errorf("%w: port %d info is %d bytes", ErrInvalidNPDU, p.Network, len(p.Info))
		}
		buf = binary.BigEndian.AppendUint16(buf, p.Network)
		buf = append(buf, p.PortID, byte(len(p.Info)))
		buf = append(buf, p.Info...)
	}
	return buf, nil
}

// DecodeRoutingTable decodes an Initialize-Routing-Table(-Ack) payload
func DecodeRoutingTable(data []byte) ([]RoutingTablePort, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty routing table", ErrInvalidNPDU)
	}
	count := int(data[0])
	offset := 1
	ports := make([]RoutingTablePort, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < offset+4 {
			return nil, fmt.Errorf("%w: truncated routing table entry %d", ErrInvalidNPDU, i)
		}
		p := RoutingTablePort{
			Network: binary.BigEndian.Uint16(data[offset:]),
			PortID:  data[offset+2],
		}
		infoLen := int(data[offset+3])
		offset += 4
		if len(data) < offset+infoLen {
			return nil, fmt.Errorf("%w: truncated port info in entry %d", ErrInvalidNPDU, i)
		}
		if infoLen > 0 {
			p.Info = append([]byte(nil), data[offset:offset+infoLen]...)
		}
		offset += infoLen
		ports = append(ports, p)
	}
	return ports, nil
}

// DecodeRejectMessage decodes a Reject-Message-To-Network payload
func DecodeRejectMessage(data []byte) (RejectMessageReason, uint16, error) {
	if len(data) < 3 {
		return 0, 0, fmt.Errorf("%w: short reject message", ErrInvalidNPDU)
	}
	return RejectMessageReason(data[0]), binary.BigEndian.Uint16(data[1:]), nil
}

// DecodeNetworkNumberIs decodes a Network-Number-Is payload
func DecodeNetworkNumberIs(data []byte) (network uint16, configured bool, err error) {
	if len(data) < 3 {
		return 0, false, fmt.Errorf("%w: short network-number-is", ErrInvalidNPDU)
	}
	return binary.BigEndian.Uint16(data), data[2] == 1, nil
}

// EncodeNetworkNumberIs encodes a Network-Number-Is payload
func EncodeNetworkNumberIs(network uint16, configured bool) []byte {
	buf := binary.BigEndian.AppendUint16(nil, network)
	if configured {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// APDU is the subset of an application PDU the engine inspects
type APDU struct {
	Type     PDUType
	InvokeID uint8
	Service  uint8
	Data     []byte
}

// EncodeUnconfirmedRequest encodes an unconfirmed service request APDU
func EncodeUnconfirmedRequest(service UnconfirmedServiceChoice, data []byte) []byte {
	buf := make([]byte, 0, 2+len(data))
	buf = append(buf, byte(PDUTypeUnconfirmedRequest))
	buf = append(buf, byte(service))
	buf = append(buf, data...)
	return buf
}

// DecodeAPDU decodes the header of an APDU
func DecodeAPDU(data []byte) (*APDU, error) {
	if len(data) < 1 {
		return nil, ErrInvalidAPDU
	}

	pduType := PDUType(data[0] & 0xF0)
	switch pduType {
	case PDUTypeUnconfirmedRequest:
		if len(data) < 2 {
			return nil, ErrInvalidAPDU
		}
		return &APDU{Type: pduType, Service: data[1], Data: data[2:]}, nil
	case PDUTypeConfirmedRequest:
		if len(data) < 4 {
			return nil, ErrInvalidAPDU
		}
		return &APDU{Type: pduType, InvokeID: data[2], Service: data[3], Data: data[4:]}, nil
	case PDUTypeSimpleAck, PDUTypeComplexAck, PDUTypeError, PDUTypeReject, PDUTypeAbort:
		if len(data) < 3 {
			return nil, ErrInvalidAPDU
		}
		return &APDU{Type: pduType, InvokeID: data[1], Service: data[2], Data: data[3:]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown PDU type %02x", ErrInvalidAPDU, uint8(pduType))
	}
}

// EncodeWhoIs encodes the Who-Is service parameters
func EncodeWhoIs(low, high *uint32) []byte {
	if low == nil || high == nil {
		return nil
	}
	data := EncodeContextUnsigned(0, *low)
	return append(data, EncodeContextUnsigned(1, *high)...)
}

// EncodeIAm encodes the I-Am service parameters
func EncodeIAm(dev DeviceInfo) []byte {
	data := EncodeObjectIdentifierTag(dev.ObjectID)
	data = append(data, EncodeApplicationUnsigned(TagUnsignedInt, uint32(dev.MaxAPDULength))...)
	data = append(data, EncodeApplicationUnsigned(TagEnumerated, uint32(dev.Segmentation))...)
	data = append(data, EncodeApplicationUnsigned(TagUnsignedInt, uint32(dev.VendorID))...)
	return data
}

// DecodeIAm decodes the I-Am service parameters. The returned device has no
// address; the caller fills it from the NPDU source.
func DecodeIAm(data []byte) (*DeviceInfo, error) {
	values := make([]uint32, 0, 4)
	offset := 0
	for i := 0; i < 4; i++ {
		tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
		if err != nil {
			return nil, err
		}
		if class != TagClassApplication || length < 0 || len(data) < offset+headerLen+length {
			return nil, fmt.Errorf("%w: malformed I-Am parameter %d", ErrInvalidAPDU, i)
		}
		if i == 0 && (tagNum != uint8(TagObjectID) || length != 4) {
			return nil, fmt.Errorf("%w: I-Am without device identifier", ErrInvalidAPDU)
		}
		values = append(values, DecodeUnsigned(data[offset+headerLen:offset+headerLen+length]))
		offset += headerLen + length
	}

	oid := DecodeObjectIdentifier(values[0])
	if oid.Type != ObjectTypeDevice {
		return nil, fmt.Errorf("%w: I-Am for %s", ErrInvalidAPDU, oid)
	}
	return &DeviceInfo{
		ObjectID:      oid,
		MaxAPDULength: uint16(values[1]),
		Segmentation:  Segmentation(values[2]),
		VendorID:      uint16(values[3]),
	}, nil
}

// Tag encoding/decoding helpers

// EncodeTag encodes a BACnet tag
func EncodeTag(tagNum uint8, class TagClass, length int) []byte {
	if length < 5 && tagNum < 15 {
		return []byte{(tagNum << 4) | (uint8(class) << 3) | uint8(length)}
	}

	buf := make([]byte, 0, 6)
	if tagNum >= 15 {
		buf = append(buf, 0xF0|(uint8(class)<<3)|0x05, tagNum)
	} else {
		buf = append(buf, (tagNum<<4)|(uint8(class)<<3)|0x05)
	}

	switch {
	case length < 254:
		buf = append(buf, byte(length))
	case length < 65536:
		buf = append(buf, 254, byte(length>>8), byte(length))
	default:
		buf = append(buf, 255, byte(length>>24), byte(length>>16), byte(length>>8), byte(length))
	}
	return buf
}

// EncodeUnsigned encodes an unsigned integer with the fewest octets
func EncodeUnsigned(value uint32) []byte {
	switch {
	case value < 0x100:
		return []byte{byte(value)}
	case value < 0x10000:
		return []byte{byte(value >> 8), byte(value)}
	case value < 0x1000000:
		return []byte{byte(value >> 16), byte(value >> 8), byte(value)}
	}
	return []byte{byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
}

// EncodeContextUnsigned encodes an unsigned integer with context tag
func EncodeContextUnsigned(tagNum uint8, value uint32) []byte {
	data := EncodeUnsigned(value)
	return append(EncodeTag(tagNum, TagClassContext, len(data)), data...)
}

// EncodeApplicationUnsigned encodes an unsigned or enumerated application value
func EncodeApplicationUnsigned(tag ApplicationTag, value uint32) []byte {
	data := EncodeUnsigned(value)
	return append(EncodeTag(uint8(tag), TagClassApplication, len(data)), data...)
}

// EncodeObjectIdentifierTag encodes an object identifier with application tag
func EncodeObjectIdentifierTag(oid ObjectIdentifier) []byte {
	buf := EncodeTag(uint8(TagObjectID), TagClassApplication, 4)
	return binary.BigEndian.AppendUint32(buf, oid.Encode())
}

// DecodeTagNumber decodes a tag header. Opening and closing tags report a
// length of -1 and -2.
func DecodeTagNumber(data []byte) (tagNum uint8, class TagClass, length int, headerLen int, err error) {
	if len(data) < 1 {
		return 0, 0, 0, 0, ErrInvalidAPDU
	}

	tagNum = (data[0] >> 4) & 0x0F
	class = TagClass((data[0] >> 3) & 0x01)
	length = int(data[0] & 0x07)
	headerLen = 1

	if tagNum == 0x0F {
		if len(data) < 2 {
			return 0, 0, 0, 0, ErrInvalidAPDU
		}
		tagNum = data[1]
		headerLen = 2
	}

	if class == TagClassContext && length == 6 {
		return tagNum, class, -1, headerLen, nil
	}
	if class == TagClassContext && length == 7 {
		return tagNum, class, -2, headerLen, nil
	}

	if length == 5 {
		if len(data) < headerLen+1 {
			return 0, 0, 0, 0, ErrInvalidAPDU
		}
		switch ext := data[headerLen]; {
		case ext < 254:
			length = int(ext)
			headerLen++
		case ext == 254:
			if len(data) < headerLen+3 {
				return 0, 0, 0, 0, ErrInvalidAPDU
			}
			length = int(binary.BigEndian.Uint16(data[headerLen+1:]))
			headerLen += 3
		default:
			if len(data) < headerLen+5 {
				return 0, 0, 0, 0, ErrInvalidAPDU
			}
			length = int(binary.BigEndian.Uint32(data[headerLen+1:]))
			headerLen += 5
		}
	}

	return tagNum, class, length, headerLen, nil
}

// DecodeUnsigned decodes an unsigned integer from data
func DecodeUnsigned(data []byte) uint32 {
	var v uint32
	for i := 0; i < len(data) && i < 4; i++ {
		v = v<<8 | uint32(data[i])
	}
	return v
}

// DecodeWhoIs decodes the optional Who-Is range
func DecodeWhoIs(data []byte) (low, high *uint32, err error) {
	if len(data) == 0 {
		return nil, nil, nil
	}
	var limits [2]uint32
	offset := 0
	for i := range limits {
		tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
		if err != nil {
			return nil, nil, err
		}
		if class != TagClassContext || int(tagNum) != i || length < 0 || len(data) < offset+headerLen+length {
			return nil, nil, fmt.Errorf("%w: malformed Who-Is range", ErrInvalidAPDU)
		}
		limits[i] = DecodeUnsigned(data[offset+headerLen : offset+headerLen+length])
		offset += headerLen + length
	}
	return &limits[0], &limits[1], nil
}
