package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// discoveryReadBuffer is large enough for any probe; the payload is ignored.
const discoveryReadBuffer = 2048

// Responder answers every UDP datagram with one DeviceInfo reply.
type Responder struct {
	addr   string
	reply  []byte
	logger Logger

	conn net.PacketConn
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
	closed  bool

	replies atomic.Int64
}

// NewResponder creates a Responder bound to addr that advertises info.
func NewResponder(addr string, info DeviceInfo) (*Responder, error) {
	reply, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encoding device info: %w", err)
	}
	return &Responder{addr: addr, reply: reply, logger: noopLogger{}}, nil
}

// SetLogger sets the logger. Call before Start.
func (r *Responder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start binds the UDP socket and serves probes in the background.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.closed {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", r.addr)
	if err != nil {
		return fmt.Errorf("binding discovery responder on %s: %w", r.addr, err)
	}
	r.conn = conn
	r.running = true

	r.wg.Add(1)
	go r.serve()

	r.logger.Info("discovery responder started", "addr", conn.LocalAddr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Replies returns how many discovery replies have been sent.
func (r *Responder) Replies() int64 {
	return r.replies.Load()
}

// Close stops the responder.
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	r.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing discovery responder: %w", err)
	}
	return nil
}

func (r *Responder) serve() {
	defer r.wg.Done()

	buf := make([]byte, discoveryReadBuffer)
	for {
		_, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Warn("discovery read failed", "error", err)
			continue
		}

		if _, err := r.conn.WriteTo(r.reply, from); err != nil {
			r.logger.Warn("discovery reply failed", "remote", from.String(), "error", err)
			continue
		}
		r.replies.Add(1)
		r.logger.Debug("discovery probe answered", "remote", from.String())
	}
}
