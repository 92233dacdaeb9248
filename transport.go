// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package ashttp

import (
	"net"
	"time"
)

// Transport abstracts a reliable, ordered, full-duplex byte stream.
// ReadSome and WriteSome are blocking calls executed on pool
// goroutines; their completions are dispatched through the
// connection's strand.
type Transport interface {
	// ReadSome blocks until at least one byte is readable, the peer
	// half-closed (0, io.EOF), or an error occurs.
	ReadSome(b []byte) (int, error)

	// WriteSome writes the gathered buffers, returning the bytes
	// accepted. A partial count is only returned together with an
	// error.
	WriteSome(bufs net.Buffers) (int, error)

	// Shutdown half-closes both directions, best effort; errors are
	// ignored.
	Shutdown()

	// Close releases the underlying descriptor.
	Close() error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
}

// tcpTransport adapts *net.TCPConn.
type tcpTransport struct {
	conn *net.TCPConn
}

func (t *tcpTransport) ReadSome(b []byte) (int, error) {
	return t.conn.Read(b)
}

func (t *tcpTransport) WriteSome(bufs net.Buffers) (int, error) {
	n, err := bufs.WriteTo(t.conn)
	return int(n), err
}

func (t *tcpTransport) Shutdown() {
	t.conn.CloseRead()
	t.conn.CloseWrite()
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *tcpTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *tcpTransport) SetReadDeadline(tm time.Time) error {
	return t.conn.SetReadDeadline(tm)
}

// unixTransport adapts *net.UnixConn.
type unixTransport struct {
	conn *net.UnixConn
}

func (t *unixTransport) ReadSome(b []byte) (int, error) {
	return t.conn.Read(b)
}

func (t *unixTransport) WriteSome(bufs net.Buffers) (int, error) {
	n, err := bufs.WriteTo(t.conn)
	return int(n), err
}

func (t *unixTransport) Shutdown() {
	t.conn.CloseRead()
	t.conn.CloseWrite()
}

func (t *unixTransport) Close() error {
	return t.conn.Close()
}

func (t *unixTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *unixTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *unixTransport) SetReadDeadline(tm time.Time) error {
	return t.conn.SetReadDeadline(tm)
}

// genericTransport adapts any net.Conn; half-close degrades to a full
// close on transports without CloseRead/CloseWrite.
type genericTransport struct {
	conn net.Conn
}

func (t *genericTransport) ReadSome(b []byte) (int, error) {
	return t.conn.Read(b)
}

func (t *genericTransport) WriteSome(bufs net.Buffers) (int, error) {
	n, err := bufs.WriteTo(t.conn)
	return int(n), err
}

func (t *genericTransport) Shutdown() {
	t.conn.Close()
}

func (t *genericTransport) Close() error {
	return t.conn.Close()
}

func (t *genericTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *genericTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *genericTransport) SetReadDeadline(tm time.Time) error {
	return t.conn.SetReadDeadline(tm)
}

// NewTransport wraps a net.Conn with the adapter matching its concrete
// type.
func NewTransport(conn net.Conn) Transport {
	switch c := conn.(type) {
	case *net.TCPConn:
		return &tcpTransport{conn: c}
	case *net.UnixConn:
		return &unixTransport{conn: c}
	default:
		return &genericTransport{conn: c}
	}
}
