package common

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transport is an unreliable datagram socket with address identity.
type Transport interface {
	// ReadPacket blocks for at most the configured receive timeout.
	ReadPacket(buf []byte) (int, netip.AddrPort, error)
	WritePacket(packet []byte, to netip.AddrPort) error
	LocalAddr() netip.AddrPort
	Close() error
}

// Endpoint is a Transport over a bound UDP socket.
type Endpoint struct {
	conn        *net.UDPConn
	logger      *zap.Logger
	readTimeout time.Duration
	mu          sync.RWMutex
	closed      bool
}

// ListenEndpoint binds a UDP socket on addr. Failure here is fatal to
// whichever side owns the endpoint.
func ListenEndpoint(addr string, readTimeout time.Duration, logger *zap.Logger) (*Endpoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, NewProtocolError(KindTransport, "failed to resolve "+addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, NewProtocolError(KindTransport, "failed to listen on "+addr, err)
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReceiveTimeout
	}
	e := &Endpoint{
		conn:        conn,
		logger:      logger,
		readTimeout: readTimeout,
	}
	logger.Debug("UDP endpoint bound", zap.Stringer("local_addr", e.LocalAddr()))
	return e, nil
}

// ReadPacket reads one datagram. A deadline expiry returns an error
// matching ErrReceiveTimeout.
func (e *Endpoint) ReadPacket(buf []byte) (int, netip.AddrPort, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return 0, netip.AddrPort{}, fmt.Errorf("%w: %w", ErrTransport, net.ErrClosed)
	}
	e.mu.RUnlock()

	if err := e.conn.SetReadDeadline(time.Now().Add(e.readTimeout)); err != nil {
		return 0, netip.AddrPort{}, fmt.Errorf("%w: failed to set read deadline: %w", ErrTransport, err)
	}

	n, from, err := e.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, netip.AddrPort{}, ErrReceiveTimeout
		}
		return 0, netip.AddrPort{}, fmt.Errorf("%w: failed to read from UDP socket: %w", ErrTransport, err)
	}
	return n, NormalizeAddrPort(from), nil
}

// WritePacket sends one datagram to addr.
func (e *Endpoint) WritePacket(packet []byte, to netip.AddrPort) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("%w: %w", ErrTransport, net.ErrClosed)
	}
	if _, err := e.conn.WriteToUDPAddrPort(packet, to); err != nil {
		return fmt.Errorf("%w: failed to write to %s: %w", ErrTransport, to, err)
	}
	return nil
}

// LocalAddr returns the bound address.
func (e *Endpoint) LocalAddr() netip.AddrPort {
	if udpAddr, ok := e.conn.LocalAddr().(*net.UDPAddr); ok {
		return NormalizeAddrPort(udpAddr.AddrPort())
	}
	return netip.AddrPort{}
}

// Close releases the socket. Closing twice is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.logger.Debug("UDP endpoint closed", zap.Stringer("local_addr", e.LocalAddr()))
	return e.conn.Close()
}

// ResolveAddrPort resolves a host:port string to a normalized AddrPort.
func ResolveAddrPort(addr string) (netip.AddrPort, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	return NormalizeAddrPort(udpAddr.AddrPort()), nil
}

// NormalizeAddrPort unmaps IPv4-in-IPv6 addresses so that the same peer
// always produces the same key.
func NormalizeAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
