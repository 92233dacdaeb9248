package ashttp

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

type greetHandler struct {
	rs   ReplyStream
	name string
}

func (h *greetHandler) Initialize(rs ReplyStream) { h.rs = rs }

func (h *greetHandler) OnHeaders(req *Request) {
	h.name = req.Params.ByName("name")
}

func (h *greetHandler) OnData(data []byte) int { return len(data) }

func (h *greetHandler) OnClose(err error) {
	if err != nil {
		return
	}
	res := NewResponse(200)
	res.Header.Set("Content-Type", "text/plain")
	h.rs.SendHeaders(res, []byte("hello "+h.name), nil)
	h.rs.Close(nil)
}

func TestEngineServeConnPipe(t *testing.T) {
	e := NewEngine(Config{Name: "pipe-test", SafeMode: true})
	e.HandleFunc("GET", "/hello/:name", func() Handler { return &greetHandler{} })

	client, server := net.Pipe()
	e.ServeConn(server)

	go client.Write([]byte("GET /hello/world HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))

	data, err := io.ReadAll(client)
	if err != nil && err != io.EOF {
		t.Fatalf("read failed: %v", err)
	}
	out := string(data)
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("invalid response: %q", out)
	}
	if !strings.HasSuffix(out, "hello world") {
		t.Fatalf("invalid body: %q", out)
	}
	if strings.Contains(out, "keep-alive") {
		t.Fatalf("keep-alive on a close request: %q", out)
	}

	waitDrained(t, e)
	e.Stop()
}

func TestEngineListenAndServe(t *testing.T) {
	e := NewEngine(Config{Name: "tcp-test", Addrs: []string{"127.0.0.1:0"}, SafeMode: true})
	e.HandleFunc("GET", "/hello/:name", func() Handler { return &greetHandler{} })

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	e.mux.Lock()
	addr := e.listeners[0].Addr().String()
	e.mux.Unlock()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if _, err = conn.Write([]byte("GET /hello/tcp HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.HasSuffix(string(data), "hello tcp") {
		t.Fatalf("invalid response: %q", string(data))
	}

	waitDrained(t, e)
}

func TestEngineMaxLoad(t *testing.T) {
	e := NewEngine(Config{Name: "maxload-test", MaxLoad: 1})

	c1, s1 := net.Pipe()
	e.ServeConn(s1)
	waitFor(t, "first connection", func() bool { return e.Online() == 1 })

	c2, s2 := net.Pipe()
	e.ServeConn(s2)
	buf := make([]byte, 1)
	if _, err := c2.Read(buf); err == nil {
		t.Fatal("over-load connection not dropped")
	}
	if e.Online() != 1 {
		t.Fatalf("online: %v", e.Online())
	}

	c1.Close()
	waitDrained(t, e)
	e.Stop()
}

func TestEngineShutdown(t *testing.T) {
	e := NewEngine(Config{Name: "shutdown-test"})

	_, s1 := net.Pipe()
	e.ServeConn(s1)
	waitFor(t, "connection", func() bool { return e.Online() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
	defer cancel()
	if err := e.Shutdown(ctx); err == nil {
		t.Fatal("Shutdown returned nil with a connection still open")
	}
	waitFor(t, "forced teardown", func() bool { return e.Online() == 0 })
}

func TestEngineShutdownIdle(t *testing.T) {
	e := NewEngine(Config{Name: "shutdown-idle-test"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
