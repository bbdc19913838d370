// Package transport provides the transport layer for BACnet communication
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrNotOpen is returned when the socket is used before Open
var ErrNotOpen = errors.New("transport not open")

// maxPacketSize covers the largest BACnet/IP frame (1476 byte APDU + headers)
const maxPacketSize = 1500

// UDPTransport implements BACnet/IP transport over UDP
type UDPTransport struct {
	localAddr     string
	broadcastAddr *net.UDPAddr
	conn          *net.UDPConn
	mu            sync.RWMutex
	writeTimeout  time.Duration
	closed        bool
}

// NewUDPTransport creates a new UDP transport. Broadcasts go to the limited
// broadcast address on port until SetBroadcastAddr is called.
func NewUDPTransport(localAddr string, port int) *UDPTransport {
	return &UDPTransport{
		localAddr:     localAddr,
		broadcastAddr: &net.UDPAddr{IP: net.IPv4bcast, Port: port},
		writeTimeout:  3 * time.Second,
	}
}

// SetWriteTimeout sets the write timeout
func (t *UDPTransport) SetWriteTimeout(d time.Duration) {
	t.mu.Lock()
	t.writeTimeout = d
	t.mu.Unlock()
}

// SetBroadcastAddr sets the destination used by Broadcast
func (t *UDPTransport) SetBroadcastAddr(ip string) error {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return fmt.Errorf("invalid broadcast address %q", ip)
	}
	t.mu.Lock()
	t.broadcastAddr = &net.UDPAddr{IP: parsed, Port: t.broadcastAddr.Port}
	t.mu.Unlock()
	return nil
}

// Open opens the UDP connection
func (t *UDPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.closed {
		return nil
	}

	var addr *net.UDPAddr
	if t.localAddr != "" {
		var err error
		addr, err = net.ResolveUDPAddr("udp4", t.localAddr)
		if err != nil {
			return fmt.Errorf("resolve local address: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = conn
	t.closed = false
	return nil
}

// Close closes the UDP connection
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}

	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the local address
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Send sends data to a specific address
func (t *UDPTransport) Send(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	t.mu.RLock()
	conn := t.conn
	writeTimeout := t.writeTimeout
	t.mu.RUnlock()

	if conn == nil {
		return ErrNotOpen
	}

	// Set deadline from context or default timeout
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("write UDP: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("partial write: %d of %d bytes", n, len(data))
	}

	return nil
}

// Broadcast sends data to the broadcast address
func (t *UDPTransport) Broadcast(ctx context.Context, data []byte) error {
	t.mu.RLock()
	addr := t.broadcastAddr
	t.mu.RUnlock()
	return t.Send(ctx, addr, data)
}

// ReceiveWithTimeout receives one datagram, waiting at most timeout
func (t *UDPTransport) ReceiveWithTimeout(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return nil, nil, ErrNotOpen
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, maxPacketSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}

	return buf[:n], addr, nil
}

// IsClosed returns true if the transport is closed
func (t *UDPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
