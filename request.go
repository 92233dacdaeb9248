// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

const (
	contentLengthHeader = "Content-Length"
	connectionHeader    = "Connection"
	keepAliveValue      = "keep-alive"
	closeValue          = "close"
)

// Request accumulates one parsed HTTP request: method, raw URL, proto
// and headers. The body is never stored here; it streams through the
// connection into the handler.
type Request struct {
	Method string
	URL    string
	Proto  string
	Header http.Header

	// Params carries the matched route parameters, set when a factory
	// lookup succeeds.
	Params httprouter.Params

	contentLength int64
}

// ContentLength returns the parsed Content-Length, 0 if absent.
func (r *Request) ContentLength() int64 {
	return r.contentLength
}

// KeepAlive reports the request's connection-reuse disposition:
// HTTP/1.1 defaults to keep-alive unless "Connection: close" is sent,
// HTTP/1.0 requires an explicit "Connection: keep-alive".
func (r *Request) KeepAlive() bool {
	conn := strings.ToLower(r.Header.Get(connectionHeader))
	if r.Proto == "HTTP/1.0" {
		return strings.Contains(conn, keepAliveValue)
	}
	return !strings.Contains(conn, closeValue)
}

func (r *Request) addHeader(key, value string) {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Add(key, value)
}

func (r *Request) reset() {
	r.Method = ""
	r.URL = ""
	r.Proto = ""
	r.Header = nil
	r.Params = nil
	r.contentLength = 0
}
