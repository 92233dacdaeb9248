package ashttp

import (
	"strings"
	"testing"
)

func TestResponseEncode(t *testing.T) {
	res := NewResponse(200)
	res.Header.Set("Content-Type", "text/plain")
	body := []byte("hello")

	buffers, pooled := res.encode(body)
	if len(buffers) != 2 {
		t.Fatalf("invalid buffer count: %v", len(buffers))
	}
	head := string(buffers[0])
	if !strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("invalid status line: %q", head)
	}
	if !strings.Contains(head, "Content-Length: 5\r\n") {
		t.Fatalf("missing content length: %q", head)
	}
	if !strings.Contains(head, "Content-Type: text/plain\r\n") {
		t.Fatalf("missing content type: %q", head)
	}
	if !strings.HasSuffix(head, "\r\n\r\n") {
		t.Fatalf("head not terminated: %q", head)
	}
	if &buffers[1][0] != &body[0] {
		t.Fatal("body was copied instead of referenced")
	}
	if &pooled[0] != &buffers[0][0] {
		t.Fatal("pooled buffer is not the head buffer")
	}
}

func TestResponseEncodeNoBody(t *testing.T) {
	res := NewResponse(204)
	buffers, _ := res.encode(nil)
	if len(buffers) != 1 {
		t.Fatalf("invalid buffer count: %v", len(buffers))
	}
	if !strings.Contains(string(buffers[0]), "Content-Length: 0\r\n") {
		t.Fatalf("missing content length: %q", string(buffers[0]))
	}
}

func TestStockReply(t *testing.T) {
	res := stockReply(StatusNotFound)
	if res.StatusCode != 404 {
		t.Fatalf("invalid status: %v", res.StatusCode)
	}
	buffers, _ := res.encode(nil)
	if len(buffers) != 2 {
		t.Fatalf("stock reply has no body: %v", len(buffers))
	}
	if !strings.Contains(string(buffers[1]), "404 Not Found") {
		t.Fatalf("invalid stock body: %q", string(buffers[1]))
	}
}

func TestResponseKeepAliveHeader(t *testing.T) {
	res := NewResponse(200)
	res.SetKeepAlive()
	buffers, _ := res.encode(nil)
	if !strings.Contains(string(buffers[0]), "Connection: keep-alive\r\n") {
		t.Fatalf("missing keep-alive header: %q", string(buffers[0]))
	}
}
