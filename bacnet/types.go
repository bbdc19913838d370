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

// Package bacnet provides a BACnet/IP network-layer engine: device discovery,
// router discovery and the router information cache used to reach devices on
// remote BACnet networks.
package bacnet

import (
	"fmt"
)

// DefaultPort is the standard BACnet/IP UDP port
const DefaultPort = 47808

// MaxAPDULength is the maximum APDU length for BACnet/IP
const MaxAPDULength = 1476

// MaxInstance is the highest valid device instance number
const MaxInstance = 0x3FFFFF

// GlobalNetwork is the DNET value used for global broadcasts
const GlobalNetwork uint16 = 0xFFFF

// DefaultHopCount is the hop count placed in routed NPDUs
const DefaultHopCount uint8 = 255

// BVLC Types (BACnet Virtual Link Control)
type BVLCType uint8

const (
	BVLCTypeBACnetIP BVLCType = 0x81
)

// BVLC Functions
type BVLCFunction uint8

const (
	BVLCResult                   BVLCFunction = 0x00
	BVLCForwardedNPDU            BVLCFunction = 0x04
	BVLCRegisterForeignDevice    BVLCFunction = 0x05
	BVLCDistributeBroadcastToNet BVLCFunction = 0x09
	BVLCOriginalUnicastNPDU      BVLCFunction = 0x0A
	BVLCOriginalBroadcastNPDU    BVLCFunction = 0x0B
)

// NPDU Network Layer Protocol Control Information
type NPDUControl uint8

const (
	NPDUControlNetworkLayerMessage NPDUControl = 0x80
	NPDUControlDestSpecifier       NPDUControl = 0x20
	NPDUControlSourceSpecifier     NPDUControl = 0x08
	NPDUControlExpectingReply      NPDUControl = 0x04
	NPDUControlPriorityNormal      NPDUControl = 0x00
	NPDUControlPriorityUrgent      NPDUControl = 0x01
	NPDUControlPriorityCritical    NPDUControl = 0x02
	NPDUControlPriorityLifeSafety  NPDUControl = 0x03
)

// NetworkMessageType identifies a network layer message
type NetworkMessageType uint8

const (
	NetworkMessageWhoIsRouterToNetwork          NetworkMessageType = 0x00
	NetworkMessageIAmRouterToNetwork            NetworkMessageType = 0x01
	NetworkMessageICouldBeRouterToNetwork       NetworkMessageType = 0x02
	NetworkMessageRejectMessageToNetwork        NetworkMessageType = 0x03
	NetworkMessageRouterBusyToNetwork           NetworkMessageType = 0x04
	NetworkMessageRouterAvailableToNetwork      NetworkMessageType = 0x05
	NetworkMessageInitializeRoutingTable        NetworkMessageType = 0x06
	NetworkMessageInitializeRoutingTableAck     NetworkMessageType = 0x07
	NetworkMessageEstablishConnectionToNetwork  NetworkMessageType = 0x08
	NetworkMessageDisconnectConnectionToNetwork NetworkMessageType = 0x09
	NetworkMessageWhatIsNetworkNumber           NetworkMessageType = 0x12
	NetworkMessageNetworkNumberIs               NetworkMessageType = 0x13
)

func (m NetworkMessageType) String() string {
	names := map[NetworkMessageType]string{
		NetworkMessageWhoIsRouterToNetwork:          "Who-Is-Router-To-Network",
		NetworkMessageIAmRouterToNetwork:            "I-Am-Router-To-Network",
		NetworkMessageICouldBeRouterToNetwork:       "I-Could-Be-Router-To-Network",
		NetworkMessageRejectMessageToNetwork:        "Reject-Message-To-Network",
		NetworkMessageRouterBusyToNetwork:           "Router-Busy-To-Network",
		NetworkMessageRouterAvailableToNetwork:      "Router-Available-To-Network",
		NetworkMessageInitializeRoutingTable:        "Initialize-Routing-Table",
		NetworkMessageInitializeRoutingTableAck:     "Initialize-Routing-Table-Ack",
		NetworkMessageEstablishConnectionToNetwork:  "Establish-Connection-To-Network",
		NetworkMessageDisconnectConnectionToNetwork: "Disconnect-Connection-To-Network",
		NetworkMessageWhatIsNetworkNumber:           "What-Is-Network-Number",
		NetworkMessageNetworkNumberIs:               "Network-Number-Is",
	}
	if name, ok := names[m]; ok {
		return name
	}
	return fmt.Sprintf("network-message(0x%02x)", uint8(m))
}

// RejectMessageReason is carried by Reject-Message-To-Network
type RejectMessageReason uint8

const (
	RejectMessageOther               RejectMessageReason = 0
	RejectMessageNotRouter           RejectMessageReason = 1
	RejectMessageRouterBusy          RejectMessageReason = 2
	RejectMessageUnknownMessageType  RejectMessageReason = 3
	RejectMessageMessageTooLong      RejectMessageReason = 4
	RejectMessageSecurityError       RejectMessageReason = 5
	RejectMessageAddressingError     RejectMessageReason = 6
)

// PDU Types (Application Layer)
type PDUType uint8

const (
	PDUTypeConfirmedRequest   PDUType = 0x00
	PDUTypeUnconfirmedRequest PDUType = 0x10
	PDUTypeSimpleAck          PDUType = 0x20
	PDUTypeComplexAck         PDUType = 0x30
	PDUTypeSegmentAck         PDUType = 0x40
	PDUTypeError              PDUType = 0x50
	PDUTypeReject             PDUType = 0x60
	PDUTypeAbort              PDUType = 0x70
)

// Unconfirmed Service Choices
type UnconfirmedServiceChoice uint8

const (
	ServiceIAm   UnconfirmedServiceChoice = 0
	ServiceIHave UnconfirmedServiceChoice = 1
	ServiceWhoIs UnconfirmedServiceChoice = 8
)

func (s UnconfirmedServiceChoice) String() string {
	switch s {
	case ServiceIAm:
		return "I-Am"
	case ServiceIHave:
		return "I-Have"
	case ServiceWhoIs:
		return "Who-Is"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// ObjectType represents BACnet object types
type ObjectType uint16

const (
	ObjectTypeAnalogInput ObjectType = 0
	ObjectTypeDevice      ObjectType = 8
	ObjectTypeNetworkPort ObjectType = 56
)

func (o ObjectType) String() string {
	switch o {
	case ObjectTypeAnalogInput:
		return "analog-input"
	case ObjectTypeDevice:
		return "device"
	case ObjectTypeNetworkPort:
		return "network-port"
	default:
		return fmt.Sprintf("object-type(%d)", uint16(o))
	}
}

// ObjectIdentifier represents a BACnet object identifier (type + instance)
type ObjectIdentifier struct {
	Type     ObjectType
	Instance uint32
}

// NewObjectIdentifier creates a new ObjectIdentifier
func NewObjectIdentifier(objectType ObjectType, instance uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     objectType,
		Instance: instance,
	}
}

// Encode encodes the object identifier to a 4-byte value
func (o ObjectIdentifier) Encode() uint32 {
	return (uint32(o.Type) << 22) | (o.Instance & MaxInstance)
}

// DecodeObjectIdentifier decodes a 4-byte value to an ObjectIdentifier
func DecodeObjectIdentifier(value uint32) ObjectIdentifier {
	return ObjectIdentifier{
		Type:     ObjectType((value >> 22) & 0x3FF),
		Instance: value & MaxInstance,
	}
}

func (o ObjectIdentifier) String() string {
	return fmt.Sprintf("%s:%d", o.Type.String(), o.Instance)
}

// MarshalText implements encoding.TextMarshaler
func (o ObjectIdentifier) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Segmentation represents the BACnet segmentation capability
type Segmentation uint8

const (
	SegmentationBoth     Segmentation = 0
	SegmentationTransmit Segmentation = 1
	SegmentationReceive  Segmentation = 2
	SegmentationNone     Segmentation = 3
)

func (s Segmentation) String() string {
	names := map[Segmentation]string{
		SegmentationBoth:     "segmented-both",
		SegmentationTransmit: "segmented-transmit",
		SegmentationReceive:  "segmented-receive",
		SegmentationNone:     "no-segmentation",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("segmentation(%d)", s)
}

// PathStatus is the state of a router path to a destination network
type PathStatus uint8

const (
	PathAvailable PathStatus = iota
	PathBusy
	PathDisconnected
	PathUnreachable
)

func (s PathStatus) String() string {
	switch s {
	case PathAvailable:
		return "available"
	case PathBusy:
		return "busy"
	case PathDisconnected:
		return "disconnected"
	case PathUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("path-status(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s PathStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeviceInfo is what an I-Am tells us about a device
type DeviceInfo struct {
	ObjectID      ObjectIdentifier
	Address       Address
	MaxAPDULength uint16
	Segmentation  Segmentation
	VendorID      uint16
}

// RoutingTablePort is one entry of an Initialize-Routing-Table(-Ack) payload
type RoutingTablePort struct {
	Network uint16
	PortID  uint8
	Info    []byte
}

// Tag types for BACnet encoding
type TagClass uint8

const (
	TagClassApplication TagClass = 0
	TagClassContext     TagClass = 1
)

type ApplicationTag uint8

const (
	TagNull        ApplicationTag = 0
	TagBoolean     ApplicationTag = 1
	TagUnsignedInt ApplicationTag = 2
	TagEnumerated  ApplicationTag = 9
	TagObjectID    ApplicationTag = 12
)
