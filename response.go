// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"net/http"
	"strconv"

	"github.com/corvidlabs/ashttp/mempool"
)

// Response carries the status and headers of one outbound reply. The
// encoded head lives in a pooled buffer owned by the outgoing queue
// entry; the Response itself is retained by that entry so any memory
// its headers reference stays alive until the bytes are on the wire.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header

	body []byte
}

// NewResponse creates a response with the given status code.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Header:     http.Header{},
	}
}

// SetKeepAlive marks the response for connection reuse.
func (res *Response) SetKeepAlive() {
	res.Header.Set(connectionHeader, keepAliveValue)
}

// encode renders the status line and headers into a pooled buffer and
// returns the gathered byte ranges for the write queue: the head buffer
// first, then the caller-owned content slice untouched (zero copy).
// When content is nil the response's canned body is used instead.
func (res *Response) encode(content []byte) ([][]byte, []byte) {
	if content == nil {
		content = res.body
	}
	if res.Header == nil {
		res.Header = http.Header{}
	}
	if res.Header.Get(contentLengthHeader) == "" {
		res.Header.Set(contentLengthHeader, strconv.Itoa(len(content)))
	}
	status := res.Status
	if status == "" {
		status = http.StatusText(res.StatusCode)
	}

	head := mempool.Malloc(128)[0:0]
	head = mempool.AppendString(head, "HTTP/1.1 ")
	head = mempool.AppendString(head, strconv.Itoa(res.StatusCode))
	head = mempool.AppendString(head, " ")
	head = mempool.AppendString(head, status)
	head = mempool.AppendString(head, "\r\n")
	for key, values := range res.Header {
		for _, value := range values {
			head = mempool.AppendString(head, key)
			head = mempool.AppendString(head, ": ")
			head = mempool.AppendString(head, value)
			head = mempool.AppendString(head, "\r\n")
		}
	}
	head = mempool.AppendString(head, "\r\n")

	buffers := [][]byte{head}
	if len(content) > 0 {
		buffers = append(buffers, content)
	}
	return buffers, head
}

const (
	// StatusBadRequest .
	StatusBadRequest = http.StatusBadRequest
	// StatusNotFound .
	StatusNotFound = http.StatusNotFound
)

// stockReply builds a canned response with a minimal HTML body, used
// for connection-level error replies.
func stockReply(statusCode int) *Response {
	res := NewResponse(statusCode)
	res.Header.Set("Content-Type", "text/html")
	res.body = []byte("<html><head><title>" + res.Status + "</title></head><body><h1>" +
		strconv.Itoa(statusCode) + " " + res.Status + "</h1></body></html>")
	return res
}
