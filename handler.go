// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

// ReplyStream is the capability a connection exposes to its handler for
// pushing response bytes and driving body delivery.
//
// SendHeaders, SendData, WantMore and Close are safe to call from any
// goroutine. Completion callbacks fire exactly once, in enqueue order,
// either when the bytes reached the transport or with the error that
// tore the connection down.
type ReplyStream interface {
	// SendHeaders enqueues the response head plus an optional body
	// slice. The content slice must stay valid until cb fires.
	SendHeaders(res *Response, content []byte, cb func(err error))

	// SendData enqueues body bytes. The slice must stay valid until cb
	// fires.
	SendData(content []byte, cb func(err error))

	// WantMore signals readiness to accept more OnData after a short
	// read (backpressure release).
	WantMore()

	// Close terminates the logical request; a nil err means normal
	// completion, a non-nil err forces an error close.
	Close(err error)
}

// Handler consumes one request. OnHeaders precedes any OnData; OnClose
// follows the last OnData (or OnHeaders when there is no body) and is
// called at most once.
type Handler interface {
	// Initialize injects the connection's reply stream before any other
	// callback.
	Initialize(rs ReplyStream)

	// OnHeaders delivers the parsed request head.
	OnHeaders(req *Request)

	// OnData delivers a chunk of body bytes and returns how many of
	// them were consumed. Returning less than len(data) pauses
	// delivery until WantMore is called.
	OnData(data []byte) int

	// OnClose reports end of request input: nil on a fully delivered
	// body, non-nil when the connection failed first.
	OnClose(err error)
}

// HandlerFactory constructs a fresh Handler per matched request.
type HandlerFactory interface {
	Create() Handler
}

// HandlerFactoryFunc adapts a function to the HandlerFactory interface.
type HandlerFactoryFunc func() Handler

// Create .
func (f HandlerFactoryFunc) Create() Handler {
	return f()
}
