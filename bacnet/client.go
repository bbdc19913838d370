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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo-scada/bacnet/bacnet/internal/transport"
)

// ConnectionState represents the client connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// linkLayer is the datagram service under the network layer
type linkLayer interface {
	Open(ctx context.Context) error
	Close() error
	LocalAddr() net.Addr
	Send(ctx context.Context, addr *net.UDPAddr, data []byte) error
	Broadcast(ctx context.Context, data []byte) error
	ReceiveWithTimeout(timeout time.Duration) ([]byte, *net.UDPAddr, error)
	IsClosed() bool
}

// inbound is a decoded packet handed to waiters
type inbound struct {
	source   Address
	npdu     *NPDU
	apdu     *APDU
	device   *DeviceInfo
	networks []uint16
}

type waiter struct {
	match func(*inbound) bool
	ch    chan *inbound
}

// Client is a BACnet/IP network-layer client
type Client struct {
	opts *clientOptions
	link linkLayer

	state atomic.Int32

	// Router information cache
	cache *RouterInfoCache

	// Requests waiting for replies
	waitersMu sync.Mutex
	waiters   map[uint64]*waiter
	waiterSeq uint64

	// Discovered devices
	devicesMu sync.RWMutex
	devices   map[uint32]*DeviceInfo

	// BBMD we are registered with, if any
	bbmd *net.UDPAddr

	metrics *Metrics
	logger  *slog.Logger

	// Receiver goroutine
	receiverCtx    context.Context
	receiverCancel context.CancelFunc
	receiverDone   chan struct{}
}

// NewClient creates a new BACnet client
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	udp := transport.NewUDPTransport(options.localAddress, DefaultPort)
	udp.SetWriteTimeout(options.timeout)
	if err := udp.SetBroadcastAddr(options.broadcastAddress); err != nil {
		return nil, err
	}

	return newClient(options, udp), nil
}

func newClient(options *clientOptions, link linkLayer) *Client {
	cache := options.routerCache
	if cache == nil {
		cache = NewRouterInfoCache()
	}
	return &Client{
		opts:    options,
		link:    link,
		cache:   cache,
		waiters: make(map[uint64]*waiter),
		devices: make(map[uint32]*DeviceInfo),
		metrics: NewMetrics(),
		logger:  options.logger,
	}
}

// Connect opens the BACnet client connection
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.metrics.ConnectAttempts.Inc()

	if err := c.link.Open(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		c.metrics.ConnectFailures.Inc()
		return fmt.Errorf("open transport: %w", err)
	}

	c.receiverCtx, c.receiverCancel = context.WithCancel(context.Background())
	c.receiverDone = make(chan struct{})
	go c.receiver()

	c.state.Store(int32(StateConnected))
	c.metrics.ConnectSuccesses.Inc()

	localAddr := ""
	if addr := c.link.LocalAddr(); addr != nil {
		localAddr = addr.String()
	}
	c.logger.Info("connected",
		slog.String("local_addr", localAddr),
		slog.Uint64("network", uint64(c.opts.networkNumber)),
	)

	if c.opts.bbmdAddress != "" {
		if err := c.registerForeignDevice(ctx); err != nil {
			c.logger.Warn("failed to register as foreign device",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Close closes the BACnet client connection
func (c *Client) Close() error {
	if c.state.Load() == int32(StateDisconnected) {
		return nil
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.Disconnects.Inc()

	if c.receiverCancel != nil {
		c.receiverCancel()
		<-c.receiverDone
	}

	// Wake up everything still waiting for a reply
	c.waitersMu.Lock()
	for _, w := range c.waiters {
		close(w.ch)
	}
	c.waiters = make(map[uint64]*waiter)
	c.waitersMu.Unlock()

	if err := c.link.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	c.logger.Info("disconnected")
	return nil
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// RouterInfoCache returns the cache the client routes with
func (c *Client) RouterInfoCache() *RouterInfoCache {
	return c.cache
}

// receiver handles incoming packets
func (c *Client) receiver() {
	defer close(c.receiverDone)

	for {
		select {
		case <-c.receiverCtx.Done():
			return
		default:
		}

		data, addr, err := c.link.ReceiveWithTimeout(100 * time.Millisecond)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if c.link.IsClosed() {
				return
			}
			c.logger.Debug("receive error", slog.String("error", err.Error()))
			continue
		}

		c.metrics.PacketsReceived.Inc()
		c.metrics.BytesReceived.Add(int64(len(data)))
		c.metrics.RecordActivity()

		c.handlePacket(data, addr)
	}
}

// handlePacket decodes one datagram and hands it to the engine and waiters
func (c *Client) handlePacket(data []byte, from *net.UDPAddr) {
	bvlc, err := DecodeBVLC(data)
	if err != nil {
		c.metrics.PacketsDropped.Inc()
		c.logger.Debug("invalid BVLC", slog.String("error", err.Error()))
		return
	}

	payload := data[4:]
	source := IPAddress(from)

	switch bvlc.Function {
	case BVLCOriginalUnicastNPDU, BVLCOriginalBroadcastNPDU, BVLCDistributeBroadcastToNet:
	case BVLCForwardedNPDU:
		// The BBMD puts the originating B/IP address in front of the NPDU
		if len(payload) < 6 {
			c.metrics.PacketsDropped.Inc()
			return
		}
		source = LocalStation(payload[:6])
		payload = payload[6:]
	case BVLCResult:
		if len(payload) >= 2 {
			c.logger.Debug("BVLC result",
				slog.String("from", from.String()),
				slog.Uint64("code", uint64(binary.BigEndian.Uint16(payload))),
			)
		}
		return
	default:
		return
	}

	npdu, offset, err := DecodeNPDU(payload)
	if err != nil {
		c.metrics.PacketsDropped.Inc()
		c.logger.Debug("invalid NPDU", slog.String("error", err.Error()))
		return
	}
	if npdu.SrcNet != 0 {
		source = RemoteStation(npdu.SrcNet, npdu.SrcAddr)
	}

	in := &inbound{source: source, npdu: npdu}

	if npdu.IsNetworkMessage() {
		if !c.handleNetworkMessage(in) {
			c.metrics.PacketsDropped.Inc()
			return
		}
	} else {
		apdu, err := DecodeAPDU(payload[offset:])
		if err != nil {
			c.metrics.PacketsDropped.Inc()
			c.logger.Debug("invalid APDU", slog.String("error", err.Error()))
			return
		}
		in.apdu = apdu
		if apdu.Type == PDUTypeUnconfirmedRequest && UnconfirmedServiceChoice(apdu.Service) == ServiceIAm {
			c.handleIAm(in)
		}
	}

	c.dispatch(in)
}

// handleNetworkMessage applies a network layer message to the engine state.
// It returns false when the message is malformed.
func (c *Client) handleNetworkMessage(in *inbound) bool {
	msg := in.npdu.MessageType
	logger := c.logger.With(
		slog.String("message", msg.String()),
		slog.String("source", in.source.String()),
	)

	switch msg {
	case NetworkMessageIAmRouterToNetwork:
		networks, err := DecodeNetworkList(in.npdu.Data)
		if err != nil {
			logger.Debug("malformed message", slog.String("error", err.Error()))
			return false
		}
		in.networks = networks
		c.metrics.IAmRouterReceived.Inc()
		logger.Debug("router announced", slog.Any("networks", networks))

	case NetworkMessageNetworkNumberIs:
		network, configured, err := DecodeNetworkNumberIs(in.npdu.Data)
		if err != nil {
			logger.Debug("malformed message", slog.String("error", err.Error()))
			return false
		}
		in.networks = []uint16{network}
		c.metrics.NetworkNumberIsReceived.Inc()
		logger.Debug("network number announced",
			slog.Uint64("network", uint64(network)),
			slog.Bool("configured", configured),
		)

	case NetworkMessageInitializeRoutingTableAck:
		ports, err := DecodeRoutingTable(in.npdu.Data)
		if err != nil {
			logger.Debug("malformed message", slog.String("error", err.Error()))
			return false
		}
		networks := make([]uint16, 0, len(ports))
		for _, p := range ports {
			networks = append(networks, p.Network)
		}
		in.networks = networks
		c.metrics.RoutingTableAcks.Inc()
		c.cache.UpdateRouterReferences(in.source.Net, in.source, networks)
		logger.Info("routing table received", slog.Any("networks", networks))

	case NetworkMessageRouterBusyToNetwork, NetworkMessageRouterAvailableToNetwork:
		networks, err := DecodeNetworkList(in.npdu.Data)
		if err != nil {
			logger.Debug("malformed message", slog.String("error", err.Error()))
			return false
		}
		status := PathAvailable
		if msg == NetworkMessageRouterBusyToNetwork {
			status = PathBusy
		}
		in.networks = networks
		n := c.cache.UpdateRouterStatus(in.source.Net, in.source, networks, status)
		c.metrics.RouterStatusUpdates.Add(int64(n))
		logger.Debug("router status changed",
			slog.String("status", status.String()),
			slog.Any("networks", networks),
			slog.Int("paths", n),
		)

	case NetworkMessageRejectMessageToNetwork:
		reason, network, err := DecodeRejectMessage(in.npdu.Data)
		if err != nil {
			logger.Debug("malformed message", slog.String("error", err.Error()))
			return false
		}
		status := PathUnreachable
		if reason == RejectMessageRouterBusy {
			status = PathBusy
		}
		in.networks = []uint16{network}
		c.metrics.RejectsToNetwork.Inc()
		n := c.cache.UpdateRouterStatus(in.source.Net, in.source, in.networks, status)
		c.metrics.RouterStatusUpdates.Add(int64(n))
		logger.Warn("message to network rejected",
			slog.Uint64("network", uint64(network)),
			slog.String("reason", reason.String()),
		)

	default:
		logger.Debug("ignored network message")
	}
	return true
}

// handleIAm records the device announced by an I-Am
func (c *Client) handleIAm(in *inbound) {
	c.metrics.IAmReceived.Inc()

	device, err := DecodeIAm(in.apdu.Data)
	if err != nil {
		c.logger.Debug("invalid I-Am", slog.String("error", err.Error()))
		return
	}
	device.Address = in.source
	in.device = device

	c.devicesMu.Lock()
	_, exists := c.devices[device.ObjectID.Instance]
	c.devices[device.ObjectID.Instance] = device
	c.devicesMu.Unlock()

	if !exists {
		c.metrics.DevicesDiscovered.Inc()
	}

	c.logger.Debug("device discovered",
		slog.Uint64("device_id", uint64(device.ObjectID.Instance)),
		slog.String("address", device.Address.String()),
		slog.Uint64("vendor_id", uint64(device.VendorID)),
	)
}

// dispatch offers a packet to every waiter that wants it
func (c *Client) dispatch(in *inbound) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()

	for _, w := range c.waiters {
		if !w.match(in) {
			continue
		}
		select {
		case w.ch <- in:
		default:
		}
	}
}

// register installs a waiter; the returned func removes it
func (c *Client) register(match func(*inbound) bool, buffer int) (*waiter, func()) {
	w := &waiter{match: match, ch: make(chan *inbound, buffer)}

	c.waitersMu.Lock()
	c.waiterSeq++
	id := c.waiterSeq
	c.waiters[id] = w
	c.waitersMu.Unlock()

	return w, func() {
		c.waitersMu.Lock()
		delete(c.waiters, id)
		c.waitersMu.Unlock()
	}
}

// await blocks until the waiter matches or ctx ends
func (c *Client) await(ctx context.Context, w *waiter, start time.Time) (*inbound, error) {
	c.metrics.ActiveRequests.Inc()
	defer c.metrics.ActiveRequests.Dec()

	select {
	case <-ctx.Done():
		c.metrics.RequestsTimedOut.Inc()
		return nil, ErrTimeout
	case in, ok := <-w.ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		c.metrics.ReplyLatency.Record(time.Since(start))
		return in, nil
	}
}

// send routes and transmits one NPDU. A nil destination is a local broadcast.
func (c *Client) send(ctx context.Context, dest *Address, npdu *NPDU, body []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	target := LocalBroadcast()
	if dest != nil {
		target = *dest
	}
	npdu.SetDestination(target)

	var unicast *net.UDPAddr
	switch target.Type {
	case AddressLocalStation:
		addr, ok := target.UDPAddr()
		if !ok {
			return newAddressError(target.String(), "not a BACnet/IP station")
		}
		unicast = addr
	case AddressRemoteStation, AddressRemoteBroadcast:
		// Without an available router the request is broadcast locally
		// with DNET set and whichever router serves it forwards it.
		if path, ok := c.cache.RouterFor(target.Net); ok && path.Status == PathAvailable {
			if addr, ok := path.Address.UDPAddr(); ok {
				unicast = addr
				c.metrics.RoutedSends.Inc()
			}
		}
	case AddressLocalBroadcast, AddressGlobalBroadcast:
	default:
		return newAddressError(target.String(), "null destination")
	}

	body = append(EncodeNPDU(npdu), body...)

	var (
		packet []byte
		err    error
	)
	switch {
	case unicast != nil:
		packet = buildPacket(BVLCOriginalUnicastNPDU, body)
		err = c.link.Send(ctx, unicast, packet)
	case c.bbmd != nil:
		packet = buildPacket(BVLCDistributeBroadcastToNet, body)
		err = c.link.Send(ctx, c.bbmd, packet)
	default:
		packet = buildPacket(BVLCOriginalBroadcastNPDU, body)
		err = c.link.Broadcast(ctx, packet)
	}

	c.metrics.RequestsSent.Inc()
	if err != nil {
		c.metrics.RequestsFailed.Inc()
		return fmt.Errorf("send to %s: %w", target, err)
	}
	c.metrics.BytesSent.Add(int64(len(packet)))
	return nil
}

func (c *Client) sendNetworkMessage(ctx context.Context, dest *Address, msg NetworkMessageType, data []byte) error {
	npdu := &NPDU{
		Control:     NPDUControlNetworkLayerMessage,
		MessageType: msg,
	}
	return c.send(ctx, dest, npdu, data)
}

func buildPacket(function BVLCFunction, npdu []byte) []byte {
	packet := make([]byte, 0, 4+len(npdu))
	packet = append(packet, EncodeBVLC(function, len(npdu))...)
	return append(packet, npdu...)
}

// registerForeignDevice registers as a foreign device with the BBMD
func (c *Client) registerForeignDevice(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", c.opts.bbmdAddress, c.opts.bbmdPort))
	if err != nil {
		return fmt.Errorf("resolve BBMD address: %w", err)
	}

	ttl := uint16(c.opts.foreignDeviceTTL.Seconds())

	data := make([]byte, 6)
	data[0] = byte(BVLCTypeBACnetIP)
	data[1] = byte(BVLCRegisterForeignDevice)
	binary.BigEndian.PutUint16(data[2:], 6)
	binary.BigEndian.PutUint16(data[4:], ttl)

	if err := c.link.Send(ctx, addr, data); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	c.bbmd = addr

	c.logger.Info("registered as foreign device",
		slog.String("bbmd", addr.String()),
		slog.Duration("ttl", c.opts.foreignDeviceTTL),
	)

	return nil
}

// WhoIs sends a Who-Is and collects the I-Am replies received before the
// discovery timeout. A Who-Is directed at a station returns as soon as that
// station answers.
func (c *Client) WhoIs(ctx context.Context, opts ...DiscoverOption) ([]*DeviceInfo, error) {
	options := defaultDiscoverOptions()
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	directed := options.Target != nil && options.Target.IsStation()
	w, done := c.register(func(in *inbound) bool {
		if in.device == nil {
			return false
		}
		if directed && !in.source.Equal(*options.Target) {
			return false
		}
		instance := in.device.ObjectID.Instance
		if options.LowLimit != nil && instance < *options.LowLimit {
			return false
		}
		if options.HighLimit != nil && instance > *options.HighLimit {
			return false
		}
		return true
	}, 64)
	defer done()

	apdu := EncodeUnconfirmedRequest(ServiceWhoIs, EncodeWhoIs(options.LowLimit, options.HighLimit))
	start := time.Now()
	if err := c.send(ctx, options.Target, &NPDU{}, apdu); err != nil {
		return nil, fmt.Errorf("who-is: %w", err)
	}
	c.metrics.WhoIsSent.Inc()

	seen := make(map[uint32]bool)
	var devices []*DeviceInfo
	for {
		select {
		case <-ctx.Done():
			return devices, nil
		case in, ok := <-w.ch:
			if !ok {
				return devices, ErrConnectionClosed
			}
			if seen[in.device.ObjectID.Instance] {
				continue
			}
			seen[in.device.ObjectID.Instance] = true
			if len(devices) == 0 {
				c.metrics.ReplyLatency.Record(time.Since(start))
			}
			devices = append(devices, in.device)
			if directed {
				return devices, nil
			}
		}
	}
}

// Devices returns every device seen so far, ordered by instance
func (c *Client) Devices() []*DeviceInfo {
	c.devicesMu.RLock()
	devices := make([]*DeviceInfo, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	c.devicesMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ObjectID.Instance < devices[j].ObjectID.Instance
	})
	return devices
}

// GetDevice returns information about a discovered device
func (c *Client) GetDevice(deviceID uint32) (*DeviceInfo, bool) {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	dev, ok := c.devices[deviceID]
	return dev, ok
}

// WhoIsRouterToNetwork asks which networks the routers at dest reach. With a
// non-zero network only routers to that network answer. It returns the
// network list of the first matching I-Am-Router-To-Network, or ErrTimeout
// when ctx ends first.
func (c *Client) WhoIsRouterToNetwork(ctx context.Context, dest *Address, network uint16) ([]uint16, error) {
	var data []byte
	if network != 0 {
		data = EncodeNetworkList([]uint16{network})
	}

	directed := dest != nil && dest.IsStation()
	w, done := c.register(func(in *inbound) bool {
		if !in.npdu.IsNetworkMessage() || in.npdu.MessageType != NetworkMessageIAmRouterToNetwork {
			return false
		}
		if directed && !in.source.Equal(*dest) {
			return false
		}
		return network == 0 || slices.Contains(in.networks, network)
	}, 1)
	defer done()

	start := time.Now()
	if err := c.sendNetworkMessage(ctx, dest, NetworkMessageWhoIsRouterToNetwork, data); err != nil {
		return nil, fmt.Errorf("who-is-router-to-network: %w", err)
	}
	c.metrics.WhoIsRouterSent.Inc()

	in, err := c.await(ctx, w, start)
	if err != nil {
		return nil, err
	}
	return in.networks, nil
}

// InitializeRoutingTable sends an empty Initialize-Routing-Table. Routers
// answer with their routing table, which the receiver folds into the router
// information cache when it arrives.
func (c *Client) InitializeRoutingTable(ctx context.Context, dest *Address) error {
	payload, err := EncodeRoutingTable(nil)
	if err != nil {
		return err
	}
	if err := c.sendNetworkMessage(ctx, dest, NetworkMessageInitializeRoutingTable, payload); err != nil {
		return fmt.Errorf("initialize-routing-table: %w", err)
	}
	c.metrics.RoutingTableRequests.Inc()
	return nil
}

// WhatIsNetworkNumber asks for the number of the local network. The message
// is never routed, so dest must be nil, the local broadcast or a local station.
func (c *Client) WhatIsNetworkNumber(ctx context.Context, dest *Address) (uint16, error) {
	directed := false
	if dest != nil {
		switch dest.Type {
		case AddressLocalBroadcast:
		case AddressLocalStation:
			directed = true
		default:
			return 0, newAddressError(dest.String(), "what-is-network-number is not routed")
		}
	}

	w, done := c.register(func(in *inbound) bool {
		if !in.npdu.IsNetworkMessage() || in.npdu.MessageType != NetworkMessageNetworkNumberIs {
			return false
		}
		return !directed || in.source.Equal(*dest)
	}, 1)
	defer done()

	start := time.Now()
	if err := c.sendNetworkMessage(ctx, dest, NetworkMessageWhatIsNetworkNumber, nil); err != nil {
		return 0, fmt.Errorf("what-is-network-number: %w", err)
	}
	c.metrics.WhatIsNetworkSent.Inc()

	in, err := c.await(ctx, w, start)
	if err != nil {
		return 0, err
	}
	return in.networks[0], nil
}

// UpdateRouterReferences tells the engine that the router at addr, on source
// network snet (0 = local), reaches dnets. Requests to those networks are
// sent through it once a path is recorded for them.
func (c *Client) UpdateRouterReferences(snet uint16, addr Address, dnets []uint16) error {
	if !addr.IsStation() {
		return newAddressError(addr.String(), "router address must be a station")
	}

	c.cache.UpdateRouterReferences(snet, addr, dnets)

	c.logger.Debug("router references updated",
		slog.Uint64("snet", uint64(snet)),
		slog.String("address", addr.String()),
		slog.Any("dnets", dnets),
	)
	return nil
}
