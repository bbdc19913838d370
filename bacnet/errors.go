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
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrTimeout          = errors.New("bacnet: request timeout")
	ErrConnectionClosed = errors.New("bacnet: connection closed")
	ErrInvalidAPDU      = errors.New("bacnet: invalid APDU")
	ErrInvalidNPDU      = errors.New("bacnet: invalid NPDU")
	ErrInvalidBVLC      = errors.New("bacnet: invalid BVLC header")
	ErrInvalidAddress   = errors.New("bacnet: invalid address")
	ErrNotConnected     = errors.New("bacnet: not connected")
	ErrAlreadyConnected = errors.New("bacnet: already connected")
)

// AddressError reports an address that could not be parsed or used
type AddressError struct {
	Input  string
	Reason string
}

func newAddressError(input, reason string) *AddressError {
	return &AddressError{Input: input, Reason: reason}
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("bacnet: invalid address %q: %s", e.Input, e.Reason)
}

func (e *AddressError) Unwrap() error {
	return ErrInvalidAddress
}

func (r RejectMessageReason) String() string {
	names := map[RejectMessageReason]string{
		RejectMessageOther:              "other",
		RejectMessageNotRouter:          "not-directly-connected",
		RejectMessageRouterBusy:         "router-busy",
		RejectMessageUnknownMessageType: "unknown-message-type",
		RejectMessageMessageTooLong:     "message-too-long",
		RejectMessageSecurityError:      "security-error",
		RejectMessageAddressingError:    "addressing-error",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", r)
}

// IsTimeout returns true if the error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsInvalidAddress returns true if the error comes from a malformed address
func IsInvalidAddress(err error) bool {
	return errors.Is(err, ErrInvalidAddress)
}

// IsNotConnected returns true if the client was used before Connect
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}
