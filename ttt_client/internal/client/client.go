// Package client implements the requesting side of the protocol: a
// stop-and-wait request engine with bounded retransmission, and the
// interactive game played on top of it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	common "github.com/iselt/ttt-udp/common"
	"go.uber.org/zap"
)

// Client issues one request at a time to a single server.
type Client struct {
	timing    common.TimingConfig
	transport common.Transport
	server    netip.AddrPort
	logger    *zap.Logger
	metrics   *Metrics

	// inbox holds at most one envelope; a newer one replaces it.
	inbox  chan common.Envelope
	nextID atomic.Uint64
	reqMu  sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
	// readErr is set before done closes when the socket fails.
	readErr   error
	started   atomic.Bool
	closeOnce sync.Once
}

// New creates a client sending to server over transport. The client takes
// ownership of the transport.
func New(config common.ClientConfig, transport common.Transport, server netip.AddrPort, logger *zap.Logger, metrics *Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	config.Timing.ApplyDefaults()

	return &Client{
		timing:    config.Timing,
		transport: transport,
		server:    common.NormalizeAddrPort(server),
		logger:    logger.With(zap.Stringer("server", server)),
		metrics:   metrics,
		inbox:     make(chan common.Envelope, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the background receive loop. It must be called once
// before the first request.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	go c.receiveLoop(ctx)
}

func (c *Client) receiveLoop(ctx context.Context) {
	defer close(c.done)
	buffer := make([]byte, common.MaxDatagramSize)

	for ctx.Err() == nil {
		n, from, err := c.transport.ReadPacket(buffer)
		if err != nil {
			if common.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.metrics.RecordError("receive")
			c.logger.Error("Receive loop stopped", zap.Error(err))
			c.readErr = common.NewProtocolError(common.KindTransport, "failed to read from server socket", err)
			return
		}
		if from != c.server {
			c.logger.Debug("Dropped datagram from unexpected peer", zap.Stringer("remote", from))
			continue
		}

		d := common.Decode(buffer[:n])
		switch d.Kind {
		case common.KindControl:
			if d.Control == common.ControlPing {
				c.send(common.EncodeControl(common.ControlPong))
			}
		case common.KindEnvelope:
			c.deliver(d.Envelope)
		default:
			c.logger.Debug("Dropped malformed datagram", zap.Int("size", n))
		}
	}
}

// deliver stores env in the inbox, evicting an unread older envelope.
func (c *Client) deliver(env common.Envelope) {
	for {
		select {
		case c.inbox <- env:
			return
		default:
		}
		select {
		case <-c.inbox:
		default:
		}
	}
}

// Bootstrap opens the session with a bare role token. Its id is 0 and it
// must be the first request.
func (c *Client) Bootstrap(ctx context.Context, role string) (string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if !c.nextID.CompareAndSwap(0, 1) {
		return "", fmt.Errorf("bootstrap after request %d", c.nextID.Load()-1)
	}
	return c.roundTrip(ctx, 0, common.EncodeBootstrap(role))
}

// Request sends body under the next sequence id and blocks until the
// matching reply body arrives. It fails with common.ErrUnavailable after
// MaxAttempts unanswered sends, or with ctx.Err() when ctx ends first. A
// socket failure ends every later request with a transport error.
func (c *Client) Request(ctx context.Context, body string) (string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	id := c.nextID.Add(1) - 1
	return c.roundTrip(ctx, id, common.Encode(id, body))
}

func (c *Client) roundTrip(ctx context.Context, id uint64, packet []byte) (string, error) {
	c.metrics.Requests.Inc()
	start := time.Now()

	// replies to earlier requests are no longer wanted
	select {
	case <-c.inbox:
	default:
	}

	for attempt := 1; attempt <= c.timing.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.Retransmissions.Inc()
			c.logger.Debug("Retransmitting request", zap.Uint64("seq", id), zap.Int("attempt", attempt))
		}
		c.send(packet)

		timer := time.NewTimer(c.timing.RetryInterval)
		body, ok, err := c.await(ctx, id, timer)
		timer.Stop()
		if err != nil {
			return "", err
		}
		if ok {
			c.metrics.RTT.Observe(time.Since(start).Seconds())
			return body, nil
		}
	}

	c.metrics.Unavailable.Inc()
	return "", common.NewProtocolError(common.KindRequest,
		fmt.Sprintf("no reply to request %d after %d attempts", id, c.timing.MaxAttempts),
		common.ErrUnavailable)
}

// await waits for the reply to id until timer fires.
func (c *Client) await(ctx context.Context, id uint64, timer *time.Timer) (string, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-c.done:
			if c.readErr != nil {
				return "", false, c.readErr
			}
			return "", false, common.ErrClosed
		case <-timer.C:
			return "", false, nil
		case env := <-c.inbox:
			if env.ID == id {
				return env.Body, true, nil
			}
			c.logger.Debug("Discarded reply with unexpected id",
				zap.Uint64("seq", env.ID), zap.Uint64("want", id))
		}
	}
}

func (c *Client) send(packet []byte) {
	if err := c.transport.WritePacket(packet, c.server); err != nil {
		c.metrics.RecordError("send")
		c.logger.Warn("Failed to send datagram", zap.Error(err))
	}
}

// Close tells the server the session is over, without waiting for an
// answer, then stops the receive loop and releases the transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		id := c.nextID.Load()
		if id > 0 {
			c.send(common.Encode(id, common.BodyClose))
		}
		if c.started.Load() {
			c.cancel()
			<-c.done
		}
		err = c.transport.Close()
	})
	return err
}
