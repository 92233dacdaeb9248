// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"net"

	"github.com/corvidlabs/ashttp/logging"
	"github.com/corvidlabs/ashttp/mempool"
)

// maxWriteBuffers caps the byte ranges gathered into one WriteSome
// call, bounding per-syscall scatter-gather cost.
const maxWriteBuffers = 32

// bufferInfo is one logical outbound message: an ordered sequence of
// byte ranges, the response anchoring any memory its headers
// reference, the pooled head buffer to return after the write, and an
// optional completion callback fired exactly once.
type bufferInfo struct {
	buffers  [][]byte
	response *Response
	pooled   []byte
	cb       func(err error)
}

func (bi *bufferInfo) free() {
	if bi.pooled != nil {
		mempool.Free(bi.pooled)
		bi.pooled = nil
	}
	bi.response = nil
	bi.buffers = nil
}

// SendHeaders enqueues the response head plus an optional body slice.
// Callable from any goroutine.
func (c *Connection) SendHeaders(res *Response, content []byte, cb func(err error)) {
	logging.Debug("send headers: %v", res.StatusCode)

	c.storeAccessStatus(res.StatusCode)

	if c.keepAlive {
		res.SetKeepAlive()
	}

	buffers, pooled := res.encode(content)
	c.send(&bufferInfo{buffers: buffers, response: res, pooled: pooled, cb: cb})
}

// SendData enqueues body bytes. Callable from any goroutine.
func (c *Connection) SendData(content []byte, cb func(err error)) {
	c.send(&bufferInfo{buffers: [][]byte{content}, cb: cb})
}

func (c *Connection) send(info *bufferInfo) {
	c.outMux.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.outMux.Unlock()
		if info.cb != nil {
			info.cb(err)
		}
		info.free()
		return
	}
	c.outgoing = append(c.outgoing, info)
	if c.sending {
		c.outMux.Unlock()
		return
	}
	c.sending = true
	bufs := c.gatherLocked()
	c.outMux.Unlock()
	c.armWrite(bufs)
}

// gatherLocked flattens the head of the queue into a bounded buffer
// vector for a single WriteSome. Caller holds outMux.
func (c *Connection) gatherLocked() net.Buffers {
	bufs := make(net.Buffers, 0, maxWriteBuffers)
	for _, info := range c.outgoing {
		for _, b := range info.buffers {
			if len(bufs) == maxWriteBuffers {
				return bufs
			}
			bufs = append(bufs, b)
		}
	}
	return bufs
}

func (c *Connection) armWrite(bufs net.Buffers) {
	c.retain()
	safeGo(func() {
		n, err := c.transport.WriteSome(bufs)
		c.strand.Post(func() {
			c.writeFinished(err, n)
			c.release()
		})
	})
}

// writeFinished consumes written bytes from the queue front to back,
// releasing completion callbacks outside the lock, in enqueue order.
func (c *Connection) writeFinished(err error, n int) {
	c.accessSent += int64(n)

	if err != nil {
		c.outMux.Lock()
		c.writeErr = err
		outgoing := c.outgoing
		c.outgoing = nil
		c.outMux.Unlock()

		for _, info := range outgoing {
			if info.cb != nil {
				info.cb(err)
			}
			info.free()
		}

		// A failed write means the client is already gone.
		c.storeAccessStatus(statusClientGone)

		// OnClose already fired if the request body was fully delivered.
		if c.handler != nil && c.state&stateReadData != 0 {
			c.guard("Connection.writeFinished -> OnClose", shieldNone, func() {
				c.handler.OnClose(err)
			})
		}
		c.closeImpl(err)
		return
	}

	bytesWritten := n
	for bytesWritten > 0 {
		c.outMux.Lock()
		if len(c.outgoing) == 0 {
			c.outMux.Unlock()
			logging.Error("Connection.writeFinished: extra written bytes: %v", bytesWritten)
			break
		}

		info := c.outgoing[0]
		for len(info.buffers) > 0 {
			size := len(info.buffers[0])
			if size <= bytesWritten {
				bytesWritten -= size
				info.buffers = info.buffers[1:]
			} else {
				info.buffers[0] = info.buffers[0][bytesWritten:]
				bytesWritten = 0
				break
			}
		}

		if len(info.buffers) > 0 {
			c.outMux.Unlock()
			continue
		}

		c.outgoing = c.outgoing[1:]
		cb := info.cb
		c.outMux.Unlock()
		if cb != nil {
			cb(nil)
		}
		info.free()
	}

	c.outMux.Lock()
	if len(c.outgoing) == 0 {
		c.sending = false
		c.outMux.Unlock()
		return
	}
	bufs := c.gatherLocked()
	c.outMux.Unlock()
	c.armWrite(bufs)
}
