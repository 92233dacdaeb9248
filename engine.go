// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"context"
	"net"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidlabs/ashttp/logging"
	"github.com/corvidlabs/ashttp/taskpool"
	"github.com/corvidlabs/ashttp/timer"
)

var (
	// DefaultReadBufferSize .
	DefaultReadBufferSize = 1024 * 8

	// DefaultReadLimit bounds request-line plus header bytes.
	DefaultReadLimit = 1024 * 1024

	// DefaultMaxLoad .
	DefaultMaxLoad = 1024 * 100

	// DefaultKeepaliveTime .
	DefaultKeepaliveTime = time.Second * 120

	// DefaultWorkerPoolSize .
	DefaultWorkerPoolSize = runtime.NumCPU() * 256

	// DefaultWorkerQueueSize .
	DefaultWorkerQueueSize = 1024
)

// Config .
type Config struct {
	// Name describes your engine name for logging, it's set to "AH" by default.
	Name string

	// Network is the listening protocol: "tcp" (default) or "unix".
	Network string

	// Addrs is the listening addr list; empty means no listener is
	// created and connections are fed in with ServeConn.
	Addrs []string

	// MaxLoad caps concurrent connections, 100k by default.
	MaxLoad int

	// ReadBufferSize is the per-connection receive buffer, 8k by default.
	ReadBufferSize int

	// ReadLimit bounds request-line+header bytes, 1M by default.
	ReadLimit int

	// KeepaliveTime is the read deadline armed before every read,
	// 120s by default.
	KeepaliveTime time.Duration

	// SafeMode wraps every handler callback in a fault shield.
	SafeMode bool

	// WorkerPoolSize caps the shared executor pool goroutine num.
	WorkerPoolSize int

	// WorkerQueueSize is the executor pool's overflow queue length.
	WorkerQueueSize int
}

// State is a snapshot of the engine-wide counters.
type State struct {
	Online         int
	ActiveHandlers int
}

// Engine owns the listeners, the handler-factory registry, the shared
// executor pool and the process-wide counters. One Connection is
// created per accepted transport.
type Engine struct {
	Config
	sync.WaitGroup

	router  *Router
	workers *taskpool.TaskPool
	tmr     *timer.Timer

	mux       sync.Mutex
	listeners []net.Listener
	conns     map[*Connection]struct{}
	stopped   bool

	connCount   int64
	activeCount int64
}

// NewEngine .
func NewEngine(conf Config) *Engine {
	if conf.Name == "" {
		conf.Name = "AH"
	}
	if conf.Network == "" {
		conf.Network = "tcp"
	}
	if conf.MaxLoad <= 0 {
		conf.MaxLoad = DefaultMaxLoad
	}
	if conf.ReadBufferSize <= 0 {
		conf.ReadBufferSize = DefaultReadBufferSize
	}
	if conf.ReadLimit <= 0 {
		conf.ReadLimit = DefaultReadLimit
	}
	if conf.KeepaliveTime <= 0 {
		conf.KeepaliveTime = DefaultKeepaliveTime
	}
	if conf.WorkerPoolSize <= 0 {
		conf.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if conf.WorkerQueueSize <= 0 {
		conf.WorkerQueueSize = DefaultWorkerQueueSize
	}

	return &Engine{
		Config:  conf,
		router:  newRouter(),
		workers: taskpool.New(conf.WorkerPoolSize, conf.WorkerQueueSize),
		tmr:     timer.New(conf.Name),
		conns:   map[*Connection]struct{}{},
	}
}

// Handle registers a handler factory for a method and path pattern.
func (e *Engine) Handle(method, path string, factory HandlerFactory) {
	e.router.Handle(method, path, factory)
}

// HandleFunc registers a handler constructor for a method and path
// pattern.
func (e *Engine) HandleFunc(method, path string, create func() Handler) {
	e.router.Handle(method, path, HandlerFactoryFunc(create))
}

// factory routes a parsed request to a registered handler factory,
// nil when no route matches.
func (e *Engine) factory(req *Request) HandlerFactory {
	factory, params := e.router.Lookup(req.Method, req.URL)
	if factory != nil {
		req.Params = params
	}
	return factory
}

// Online returns the engine's current connection count.
func (e *Engine) Online() int {
	return int(atomic.LoadInt64(&e.connCount))
}

// State .
func (e *Engine) State() *State {
	return &State{
		Online:         e.Online(),
		ActiveHandlers: int(atomic.LoadInt64(&e.activeCount)),
	}
}

func (e *Engine) incActive() {
	atomic.AddInt64(&e.activeCount, 1)
}

func (e *Engine) decActive() {
	if atomic.AddInt64(&e.activeCount, -1) < 0 {
		logging.Error("%v active handler counter went negative", e.Name)
	}
}

func (e *Engine) addConn(c *Connection) {
	atomic.AddInt64(&e.connCount, 1)
	e.mux.Lock()
	e.conns[c] = struct{}{}
	e.mux.Unlock()
}

func (e *Engine) removeConn(c *Connection) {
	atomic.AddInt64(&e.connCount, -1)
	e.mux.Lock()
	delete(e.conns, c)
	e.mux.Unlock()
}

// Start opens the configured listeners and begins accepting.
func (e *Engine) Start() error {
	for _, addr := range e.Addrs {
		ln, err := net.Listen(e.Network, addr)
		if err != nil {
			e.closeListeners()
			return err
		}
		e.mux.Lock()
		e.listeners = append(e.listeners, ln)
		e.mux.Unlock()
		e.Add(1)
		go e.listenLoop(ln)
	}

	if len(e.Addrs) == 0 {
		logging.Info("%v start", e.Name)
	} else {
		logging.Info("%v start listen on: [\"%v\"]", e.Name, strings.Join(e.Addrs, `", "`))
	}
	return nil
}

func (e *Engine) listenLoop(ln net.Listener) {
	defer e.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if e.isStopped() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				logging.Warn("%v accept failed: %v, retrying", e.Name, err)
				time.Sleep(time.Millisecond * 10)
				continue
			}
			logging.Error("%v accept failed: %v", e.Name, err)
			return
		}
		e.ServeConn(conn)
	}
}

// ServeConn runs the per-connection state machine over an externally
// accepted net.Conn.
func (e *Engine) ServeConn(conn net.Conn) {
	if e.Online() >= e.MaxLoad {
		logging.Warn("%v over max load, connection dropped: %v", e.Name, conn.RemoteAddr())
		conn.Close()
		return
	}
	e.serveTransport(NewTransport(conn))
}

func (e *Engine) serveTransport(t Transport) {
	c := newConnection(e, t)
	c.start()
	c.release()
}

func (e *Engine) isStopped() bool {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.stopped
}

func (e *Engine) closeListeners() {
	e.mux.Lock()
	listeners := e.listeners
	e.listeners = nil
	e.mux.Unlock()
	for _, ln := range listeners {
		ln.Close()
	}
}

// Stop closes the listeners, force-closes every connection, waits for
// the accept loops and stops the worker pool.
func (e *Engine) Stop() {
	e.mux.Lock()
	if e.stopped {
		e.mux.Unlock()
		return
	}
	e.stopped = true
	conns := make([]*Connection, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mux.Unlock()

	e.closeListeners()
	for _, c := range conns {
		c.Close(ErrEngineStopped)
	}

	// Teardown continuations still need the worker pool; give the
	// connections a grace period to drain before stopping it.
	deadline := time.Now().Add(time.Second * 5)
	for e.Online() > 0 && time.Now().Before(deadline) {
		<-e.tmr.After(time.Millisecond * 10)
	}

	e.Wait()
	e.workers.Stop()
	logging.Info("%v stop", e.Name)
}

// Shutdown stops accepting and waits for in-flight connections to
// drain, force-closing whatever remains when ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closeListeners()
	for e.Online() > 0 {
		select {
		case <-ctx.Done():
			e.Stop()
			return ctx.Err()
		case <-e.tmr.After(time.Millisecond * 50):
		}
	}
	e.Stop()
	return nil
}
