package upstream

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/romeomihailus/socks5gateway/internal/proxy"
)

// fakeHTTPUpstream starts a TCP listener that reads one CONNECT request and
// replies with the given status line, then returns its address.
func fakeHTTPUpstream(t *testing.T, statusLine string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" || line == "\n" {
				break
			}
		}
		conn.Write([]byte(statusLine + "\r\n\r\n"))
		if strings.Contains(statusLine, "200") {
			// Keep the connection open briefly so the client can read past
			// the headers without ECONNRESET racing the status check.
			time.Sleep(20 * time.Millisecond)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestDial_HTTPUpstream_Success(t *testing.T) {
	addr := fakeHTTPUpstream(t, "HTTP/1.1 200 OK")
	host, portStr, _ := net.SplitHostPort(addr)
	port := mustAtoi(t, portStr)

	px := proxy.Proxy{Kind: proxy.HTTP, Host: host, Port: port}
	conn, err := Dial(context.Background(), px, "example.com:443")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	conn.Close()
}

func TestDial_HTTPUpstream_Refused(t *testing.T) {
	addr := fakeHTTPUpstream(t, "HTTP/1.1 502 Bad Gateway")
	host, portStr, _ := net.SplitHostPort(addr)
	port := mustAtoi(t, portStr)

	px := proxy.Proxy{Kind: proxy.HTTP, Host: host, Port: port}
	_, err := Dial(context.Background(), px, "example.com:443")
	if err == nil {
		t.Fatal("expected error for non-200 CONNECT response")
	}
}

func TestDial_HTTPSUpstream_Unimplemented(t *testing.T) {
	px := proxy.Proxy{Kind: proxy.HTTPS, Host: "127.0.0.1", Port: 1}
	_, err := Dial(context.Background(), px, "example.com:443")
	if err == nil {
		t.Fatal("expected HTTPS upstream to be rejected")
	}
}

func TestDial_SOCKS4Upstream_Rejected(t *testing.T) {
	px := proxy.Proxy{Kind: proxy.SOCKS4, Host: "127.0.0.1", Port: 1}
	_, err := Dial(context.Background(), px, "example.com:443")
	if err == nil {
		t.Fatal("expected SOCKS4 upstream to be rejected")
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("bad port string %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
