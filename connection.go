// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/corvidlabs/ashttp/logging"
	"github.com/corvidlabs/ashttp/mempool"
)

// Connection owns one transport and drives a single HTTP/1.1 exchange
// stream over it: incremental head parsing, backpressured body
// delivery into the handler, concurrent response transmission and
// keep-alive pipelining.
//
// All state mutations run on the connection's strand. The outgoing
// queue is the one cross-goroutine resource and has its own mutex.
// Every in-flight asynchronous operation holds a reference; the final
// release runs the teardown path.
type Connection struct {
	engine    *Engine
	transport Transport
	strand    *strand

	buffer      []byte
	unprocessed []byte
	atRead      bool

	parser  *RequestParser
	request *Request
	handler Handler

	state         uint8
	keepAlive     bool
	contentLength int64

	refs int32

	outMux   sync.Mutex
	outgoing []*bufferInfo
	sending  bool
	writeErr error

	accessMethod   string
	accessURL      string
	accessLocal    string
	accessRemote   string
	accessStatus   int32
	accessReceived int64
	accessSent     int64
	accessStart    time.Time
	accessLogged   bool
}

func newConnection(e *Engine, t Transport) *Connection {
	c := &Connection{
		engine:    e,
		transport: t,
		strand:    newStrand(e.workers.Go),
		buffer:    mempool.Malloc(e.ReadBufferSize),
		parser:    NewRequestParser(e.ReadLimit),
		request:   &Request{},
		state:     stateInitial,
		refs:      1,
	}
	e.addConn(c)
	return c
}

func (c *Connection) retain() {
	atomic.AddInt32(&c.refs, 1)
}

func (c *Connection) release() {
	if atomic.AddInt32(&c.refs, -1) == 0 {
		c.destroy()
	}
}

// start records the endpoints and arms the first read. Runs once, from
// the goroutine that accepted the transport.
func (c *Connection) start() {
	c.accessLocal = c.transport.LocalAddr().String()
	c.accessRemote = c.transport.RemoteAddr().String()
	logging.Debug("opened new connection to client: %v", c.accessRemote)
	c.strand.Dispatch(c.asyncRead)
}

// WantMore resumes body delivery after a short OnData. Callable from
// any goroutine; the effect always runs on a later strand turn so a
// fast handler cannot recurse through the state machine.
func (c *Connection) WantMore() {
	c.retain()
	c.strand.Post(func() {
		c.wantMoreImpl()
		c.release()
	})
}

// Close terminates the logical request. Callable from any goroutine;
// dispatches onto the strand.
func (c *Connection) Close(err error) {
	c.retain()
	c.strand.Dispatch(func() {
		c.closeImpl(err)
		c.release()
	})
}

func (c *Connection) wantMoreImpl() {
	logging.Debug("want more, state: %v", c.state)
	if len(c.unprocessed) > 0 {
		c.processData(c.unprocessed)
	} else {
		c.asyncRead()
	}
}

// asyncRead arms one transport read. Idempotent: a read already in
// flight makes this a no-op. The unprocessed window is cleared first;
// a read overwrites the buffer, so a non-empty window across a read
// would lose data.
func (c *Connection) asyncRead() {
	if c.atRead {
		return
	}
	c.atRead = true
	c.unprocessed = nil
	if c.engine.KeepaliveTime > 0 {
		c.transport.SetReadDeadline(time.Now().Add(c.engine.KeepaliveTime))
	}
	c.retain()
	safeGo(func() {
		n, err := c.transport.ReadSome(c.buffer)
		c.strand.Post(func() {
			c.handleRead(err, n)
			c.release()
		})
	})
}

func (c *Connection) handleRead(err error, n int) {
	c.atRead = false
	logging.Debug("read: err: %v, state: %v, bytes: %v", err, c.state, n)
	if err != nil {
		c.storeAccessStatus(statusClientGone)
		c.printAccessLog()

		if c.handler != nil {
			c.guard("Connection.handleRead -> OnClose", shieldNone, func() {
				c.handler.OnClose(err)
			})
			c.releaseHandler()
		}
		// No new operation is armed: the remaining references drain
		// and the teardown path closes the transport.
		return
	}
	if n == 0 {
		c.asyncRead()
		return
	}
	c.processData(c.buffer[:n])
}

func (c *Connection) processData(data []byte) {
	logging.Debug("data: size: %v, state: %v", len(data), c.state)
	if c.state&stateReadHeaders != 0 {
		if c.state&stateWaitingFirstData != 0 {
			c.state &^= stateWaitingFirstData
			c.accessStart = time.Now()
		}

		status, n := c.parser.Parse(c.request, data)
		c.accessReceived += int64(n)

		switch status {
		case parseMalformed:
			logging.Debug("malformed request from %v: %v", c.accessRemote, c.parser.Err())
			c.keepAlive = false
			c.unprocessed = nil
			c.state = stateProcessingRequest
			c.sendError(StatusBadRequest)
		case parseOK:
			c.accessMethod = c.request.Method
			c.accessURL = c.request.URL
			c.contentLength = c.request.ContentLength()
			c.keepAlive = c.request.KeepAlive()

			factory := c.engine.factory(c.request)
			if factory == nil {
				c.keepAlive = false
				c.unprocessed = nil
				c.state = stateProcessingRequest
				c.sendError(StatusNotFound)
				return
			}

			c.engine.incActive()
			c.handler = factory.Create()
			// The handler slot keeps the connection alive while no
			// read or write is in flight (the handler owns the reply
			// stream until the request completes).
			c.retain()
			c.handler.Initialize(c)
			if !c.guard("Connection.processData -> OnHeaders", shieldError, func() {
				c.handler.OnHeaders(c.request)
			}) {
				return
			}

			c.state = (c.state &^ stateReadHeaders) | stateReadData

			// Deliver body bytes already buffered without another
			// round-trip through the transport.
			c.processData(data[n:])
		case parseIncomplete:
			c.asyncRead()
		}
	} else if c.state&stateReadData != 0 {
		fromBody := len(data)
		if int64(fromBody) > c.contentLength {
			fromBody = int(c.contentLength)
		}
		consumed := fromBody

		if fromBody > 0 && c.handler != nil {
			if !c.guard("Connection.processData -> OnData", shieldError, func() {
				consumed = c.handler.OnData(data[:fromBody])
			}) {
				return
			}
			if consumed < 0 {
				consumed = 0
			}
			if consumed > fromBody {
				consumed = fromBody
			}
		}

		c.contentLength -= int64(consumed)
		c.accessReceived += int64(consumed)

		if consumed != fromBody {
			logging.Debug("handler consumed only %v of %v bytes", consumed, fromBody)
			// Delivery pauses here until the handler calls WantMore.
			c.unprocessed = data[consumed:]
			return
		}

		if c.contentLength > 0 {
			c.asyncRead()
			return
		}

		c.state &^= stateReadData
		c.unprocessed = data[fromBody:]

		if c.handler != nil {
			if !c.guard("Connection.processData -> OnClose", shieldError, func() {
				c.handler.OnClose(nil)
			}) {
				return
			}
		}

		if c.state&stateRequestProcessed != 0 {
			c.processNext()
		} else {
			c.state = stateProcessingRequest
		}
	}
}

// closeImpl ends the logical request: on error it tears the transport
// down; on success it either keeps draining an unread body, closes a
// non-keep-alive connection after its queued response flushes, or rolls
// over to the next request.
func (c *Connection) closeImpl(err error) {
	logging.Debug("close: err: %v, state: %v, keep alive: %v", err, c.state, c.keepAlive)

	if err != nil {
		c.releaseHandler()
		if c.accessStatusCode() != statusClientGone {
			c.storeAccessStatus(statusErrorClose)
		}
		c.printAccessLog()
		c.transport.Shutdown()
		return
	}

	if c.state&stateProcessingRequest == 0 {
		// The response is done but the request body is not: keep
		// feeding it, the handler's OnClose drives the transition.
		c.state |= stateRequestProcessed
		logging.Debug("reply sent, still need %v bytes from client", c.contentLength)
		if len(c.unprocessed) > 0 {
			c.processData(c.unprocessed)
		} else {
			c.asyncRead()
		}
		return
	}

	c.releaseHandler()

	if !c.keepAlive {
		c.printAccessLog()
		c.outMux.Lock()
		if n := len(c.outgoing); n > 0 {
			// Half-close once the queued response bytes are out.
			last, cb := c.outgoing[n-1], c.outgoing[n-1].cb
			c.retain()
			last.cb = func(err error) {
				if cb != nil {
					cb(err)
				}
				c.transport.Shutdown()
				c.release()
			}
			c.outMux.Unlock()
			return
		}
		c.outMux.Unlock()
		c.transport.Shutdown()
		return
	}

	c.processNext()
}

// processNext resets per-request state and waits for the next request
// on the same transport.
func (c *Connection) processNext() {
	c.printAccessLog()
	c.releaseHandler()

	c.state = stateInitial
	c.contentLength = 0
	c.resetAccessLog()
	c.parser.Reset()
	c.request.reset()

	logging.Debug("unprocessed: %v", len(c.unprocessed))

	if len(c.unprocessed) > 0 {
		c.processData(c.unprocessed)
	} else {
		c.asyncRead()
	}
}

// sendError enqueues a canned reply whose completion closes the
// connection once the bytes flush.
func (c *Connection) sendError(statusCode int) {
	logging.Debug("send error: status: %v, state: %v", statusCode, c.state)
	c.retain()
	c.SendHeaders(stockReply(statusCode), nil, func(err error) {
		c.closeImpl(err)
		c.release()
	})
}

// releaseHandler drops the handler slot and its reference. Every call
// site runs inside a strand turn that itself holds a reference, so the
// connection cannot be destroyed mid-turn.
func (c *Connection) releaseHandler() {
	if c.handler != nil {
		c.handler = nil
		c.engine.decActive()
		c.release()
	}
}

// Safe-mode shield cleanup policies.
const (
	shieldNone = iota
	shieldError
)

// guard invokes a handler callback. Under safe mode a panic is
// recovered: the fault is logged, access status forced to 598, the
// access line emitted, and the cleanup policy applied; guard then
// reports false. With safe mode off, failures propagate unchanged.
func (c *Connection) guard(site string, cleanup int, f func()) (ok bool) {
	if !c.engine.SafeMode {
		f()
		return true
	}
	defer func() {
		if v := recover(); v != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			logging.Error("%v: uncaught panic: %v\n%v", site, v, *(*string)(unsafe.Pointer(&buf)))
			c.storeAccessStatus(statusHandlerFault)
			c.printAccessLog()
			if cleanup == shieldError {
				c.transport.Shutdown()
				c.releaseHandler()
			}
			ok = false
		}
	}()
	f()
	return true
}

// destroy runs when the last reference is released: no asynchronous
// operation is in flight and nothing else points at the connection. A
// handler still attached here is notified of close exactly once, with
// the no-cleanup shield variant.
func (c *Connection) destroy() {
	c.engine.removeConn(c)
	logging.Debug("closed connection to client: %v", c.accessRemote)

	if c.handler != nil {
		c.storeAccessStatus(statusDestructAbort)
		c.printAccessLog()
		handler := c.handler
		c.handler = nil
		c.engine.decActive()
		c.guard("Connection.destroy -> OnClose", shieldNone, func() {
			handler.OnClose(nil)
		})
	}

	c.parser.Release()
	mempool.Free(c.buffer)
	c.buffer = nil
	c.transport.Close()
}
