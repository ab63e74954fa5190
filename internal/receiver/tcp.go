package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/screentime-core/internal/override"
)

const (
	defaultMaxPayload     = 1024
	defaultReadTimeout    = 10 * time.Second
	defaultMaxConnections = 16
	dispatchTimeout       = 10 * time.Second
	acceptRetryDelay      = 100 * time.Millisecond
)

// ListenerConfig configures the TCP command listener.
type ListenerConfig struct {
	// Addr is the host:port to bind. Port 0 picks a free port.
	Addr string

	// MaxPayload is the most bytes read from one connection.
	MaxPayload int

	// ReadTimeout bounds how long a sender may take to deliver its command.
	ReadTimeout time.Duration

	// MaxConnections caps connections handled at once. Extra connections
	// are closed immediately.
	MaxConnections int
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.MaxPayload <= 0 {
		c.MaxPayload = defaultMaxPayload
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	return c
}

// Stats are the listener counters since Start.
type Stats struct {
	Connections int64 `json:"connections"`
	Accepted    int64 `json:"accepted"`
	Rejected    int64 `json:"rejected"`
	Failed      int64 `json:"failed"`
	Dropped     int64 `json:"dropped"`
}

// Listener accepts one JSON override command per TCP connection.
//
// Nothing is written back to the sender. Malformed payloads are logged
// and dropped without touching restriction state.
type Listener struct {
	cfg        ListenerConfig
	dispatcher Dispatcher
	logger     Logger

	ln     net.Listener
	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	closed  bool

	connections atomic.Int64
	accepted    atomic.Int64
	rejected    atomic.Int64
	failed      atomic.Int64
	dropped     atomic.Int64
}

// NewListener creates a Listener that hands commands to d.
func NewListener(cfg ListenerConfig, d Dispatcher) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		cfg:        cfg,
		dispatcher: d,
		logger:     noopLogger{},
		sem:        make(chan struct{}, cfg.MaxConnections),
	}
}

// SetLogger sets the logger. Call before Start.
func (l *Listener) SetLogger(logger Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// Start binds the socket and begins accepting in the background.
//
// Parameters:
//   - ctx: Cancelling it aborts in-flight dispatches; use Close to stop accepting
//
// Returns:
//   - error: If the address cannot be bound or Start was already called
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.closed {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("binding command listener on %s: %w", l.cfg.Addr, err)
	}
	l.ln = ln
	l.running = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.acceptLoop(runCtx)

	l.logger.Info("command listener started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close stops accepting and waits for open connections to finish.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ln, cancel := l.ln, l.cancel
	l.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing command listener: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Connections: l.connections.Load(),
		Accepted:    l.accepted.Load(),
		Rejected:    l.rejected.Load(),
		Failed:      l.failed.Load(),
		Dropped:     l.dropped.Load(),
	}
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		select {
		case l.sem <- struct{}{}:
		default:
			l.dropped.Add(1)
			l.logger.Warn("too many command connections, dropping", "remote", conn.RemoteAddr().String())
			conn.Close() //nolint:errcheck // Dropping the connection
			continue
		}

		l.connections.Add(1)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer func() { <-l.sem }()
			l.handle(ctx, conn)
		}()
	}
}

// handle reads one command, dispatches it and closes the connection.
func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close() //nolint:errcheck // Nothing is written back
	remote := conn.RemoteAddr().String()

	payload, err := readPayload(conn, l.cfg.MaxPayload, l.cfg.ReadTimeout)
	if err != nil {
		l.rejected.Add(1)
		l.logger.Warn("command not read", "remote", remote, "error", err)
		return
	}

	cmd, err := override.Decode(payload)
	if err != nil {
		l.rejected.Add(1)
		l.logger.Warn("command dropped", "remote", remote, "error", err, "bytes", len(payload))
		return
	}

	dctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	res, err := l.dispatcher.Dispatch(dctx, cmd, override.SourceTCP)
	if err != nil {
		l.failed.Add(1)
		l.logger.Warn("command not applied", "remote", remote, "action", cmd.Action, "error", err)
		return
	}

	l.accepted.Add(1)
	l.logger.Info("command received",
		"remote", remote,
		"command_id", res.CommandID,
		"action", res.Action,
		"effective_action", res.EffectiveAction,
	)
}

// readPayload reads until the bytes so far form a complete JSON value,
// the sender closes its side, or the deadline passes. At most limit bytes
// are accepted.
func readPayload(conn net.Conn, limit int, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	buf := make([]byte, limit+1)
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if n > 0 && n <= limit && json.Valid(buf[:n]) {
			return buf[:n], nil
		}
		if err != nil {
			var netErr net.Error
			timedOut := errors.As(err, &netErr) && netErr.Timeout()
			if errors.Is(err, io.EOF) || timedOut {
				break
			}
			return nil, fmt.Errorf("reading command: %w", err)
		}
	}

	switch {
	case n > limit:
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	case n == 0:
		return nil, ErrEmptyPayload
	}
	return buf[:n], nil
}
