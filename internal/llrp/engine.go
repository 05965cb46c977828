package llrp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// This file implements C7, the multi-reader engine/supervisor. Grounded on
// sllurp's LLRPEngine (llrp.py): new_reader's _connect/wait_for(timeout)
// producing a ConnectTimeout, clientConnectionLost/Failed reconnect
// handling, and politeShutdown/pauseInventory/resumeInventory/setTxPower
// broadcasting across the tracked connection set by peername.

// EngineConfig holds the engine-wide dial/reconnect policy.
type EngineConfig struct {
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	Reconnect      bool
}

func (c EngineConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 5 * time.Second
}

func (c EngineConfig) reconnectDelay() time.Duration {
	if c.ReconnectDelay > 0 {
		return c.ReconnectDelay
	}
	return time.Second
}

// ReaderOptions carries the per-reader callbacks an Engine attaches to
// every Conn it creates for a given address, including across reconnects
// (a reconnect rebuilds the Conn, so callbacks live here rather than being
// added to a Conn pointer that may be replaced).
type ReaderOptions struct {
	StateCallback     func(State)
	TagReportCallback func(TagReport)
}

// Engine supervises zero or more reader connections, redialing on loss per
// EngineConfig.Reconnect.
type Engine struct {
	cfg EngineConfig
	log *logrus.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewEngine constructs an Engine. If logger is nil, logrus's standard
// logger is used.
func NewEngine(cfg EngineConfig, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{cfg: cfg, log: logger, conns: make(map[string]*Conn)}
}

// NewReader dials addr and returns the resulting Conn as soon as the TCP
// connection is up (capability negotiation and inventory then proceed in the
// background), along with a channel that receives the terminal error once the
// connection (and any reconnect attempts) finally gives up. A nil Conn with
// a populated error channel means the very first connect attempt failed.
func (e *Engine) NewReader(ctx context.Context, addr string, connCfg ConnConfig, ropts ReaderOptions) (*Conn, <-chan error) {
	first := make(chan *Conn, 1)
	errCh := make(chan error, 1)
	go e.connectLoop(ctx, addr, connCfg, ropts, first, errCh)
	return <-first, errCh
}

func (e *Engine) connectLoop(ctx context.Context, addr string, connCfg ConnConfig, ropts ReaderOptions, first chan<- *Conn, errCh chan<- error) {
	attempt := 0
	for {
		attempt++
		conn, err := e.dial(ctx, addr, connCfg, ropts)
		if err != nil {
			if attempt == 1 {
				first <- nil
			}
			if !e.cfg.Reconnect || ctx.Err() != nil {
				errCh <- err
				close(errCh)
				return
			}
			e.log.WithError(err).WithField("reader", addr).Warn("connect failed, retrying")
			if !e.sleepOrDone(ctx, errCh) {
				return
			}
			continue
		}

		e.registerConn(addr, conn)
		if attempt == 1 {
			first <- conn
		}
		runErr := conn.Run(ctx)
		e.unregisterConn(addr)

		if ctx.Err() != nil || !e.cfg.Reconnect {
			errCh <- runErr
			close(errCh)
			return
		}
		e.log.WithError(runErr).WithField("reader", addr).Warn("connection lost, reconnecting")
		if !e.sleepOrDone(ctx, errCh) {
			return
		}
	}
}

// sleepOrDone waits out the reconnect delay, reporting false (after
// delivering ctx.Err() to errCh) if ctx was canceled first.
func (e *Engine) sleepOrDone(ctx context.Context, errCh chan<- error) bool {
	select {
	case <-time.After(e.cfg.reconnectDelay()):
		return true
	case <-ctx.Done():
		errCh <- ctx.Err()
		close(errCh)
		return false
	}
}

func (e *Engine) dial(ctx context.Context, addr string, connCfg ConnConfig, ropts ReaderOptions) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.connectTimeout())
	defer cancel()

	d := net.Dialer{}
	nc, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded {
			return nil, &ConnectTimeoutError{Addr: addr}
		}
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	if tcpConn, ok := nc.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
		if err := tuneSocket(tcpConn); err != nil {
			e.log.WithError(err).Debug("low-level socket tuning unavailable")
		}
	}

	conn := NewConn(nc, connCfg, WithConnName(addr), WithConnLogger(e.log))
	if ropts.StateCallback != nil {
		conn.AddStateCallback(ropts.StateCallback)
	}
	if ropts.TagReportCallback != nil {
		conn.AddTagReportCallback(ropts.TagReportCallback)
	}
	return conn, nil
}

func (e *Engine) registerConn(addr string, c *Conn) {
	e.mu.Lock()
	e.conns[addr] = c
	e.mu.Unlock()
}

func (e *Engine) unregisterConn(addr string) {
	e.mu.Lock()
	delete(e.conns, addr)
	e.mu.Unlock()
}

func (e *Engine) connFor(addr string) (*Conn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[addr]
	return c, ok
}

// Readers returns the addresses of currently connected readers.
func (e *Engine) Readers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.conns))
	for addr := range e.conns {
		out = append(out, addr)
	}
	return out
}

// eachTarget runs fn against the connections addr selects: every tracked
// connection when addr is empty (a broadcast, per sllurp's
// `for proto in self.protocols: proto.pause(seconds)` when no peername is
// given), or just the connections whose remote address matches addr
// otherwise. Matching falls back to comparing hosts alone (ignoring port)
// so a bare IP addresses the same reader as host:port does.
func (e *Engine) eachTarget(addr string, fn func(*Conn) error) error {
	e.mu.Lock()
	var targets []*Conn
	if addr == "" {
		for _, c := range e.conns {
			targets = append(targets, c)
		}
	} else {
		host := hostOf(addr)
		for connAddr, c := range e.conns {
			if connAddr == addr || hostOf(connAddr) == host {
				targets = append(targets, c)
			}
		}
	}
	e.mu.Unlock()

	if addr != "" && len(targets) == 0 {
		return errors.Errorf("llrp: no connection for %s", addr)
	}

	var firstErr error
	for _, c := range targets {
		if err := fn(c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// PauseInventory pauses the active ROSpec on the reader at addr, or every
// tracked reader when addr is empty.
func (e *Engine) PauseInventory(addr string) error {
	return e.eachTarget(addr, func(c *Conn) error {
		return c.Pause(0, false)
	})
}

// ResumeInventory resumes the paused ROSpec on the reader at addr, or every
// tracked reader when addr is empty.
func (e *Engine) ResumeInventory(addr string) error {
	return e.eachTarget(addr, func(c *Conn) error {
		return c.Resume()
	})
}

// SetTxPower changes the transmit-power index on the reader at addr, or
// every tracked reader when addr is empty.
func (e *Engine) SetTxPower(addr string, idx int) error {
	return e.eachTarget(addr, func(c *Conn) error {
		return c.SetTxPower(idx)
	})
}

// NextAccess installs a one-shot AccessSpec on the reader at addr. Unlike
// PauseInventory/ResumeInventory/SetTxPower, sllurp's nextAccess always
// targets a single reader: addr is required.
func (e *Engine) NextAccess(addr string, readParam, writeParam *AccessOpSpec, stopAfterN uint32, accessSpecID uint32) error {
	c, ok := e.connFor(addr)
	if !ok {
		return errors.Errorf("llrp: no connection for %s", addr)
	}
	return c.NextAccess(readParam, writeParam, stopAfterN, accessSpecID)
}

// PoliteShutdown tears down every tracked connection's ROSpec/AccessSpec
// and disconnects, waiting for each to finish or for ctx to expire.
func (e *Engine) PoliteShutdown(ctx context.Context) error {
	e.mu.Lock()
	conns := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			done := make(chan struct{})
			if err := c.StopPolitely(true, func(error) { close(done) }); err != nil {
				return
			}
			select {
			case <-done:
			case <-ctx.Done():
			}
		}(c)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
