// Package upstream handles dialing through HTTP and SOCKS5 upstream
// proxies. One Dial implementation serves both the Gateway's
// DIAL_UPSTREAM state and the health checker's probes.
package upstream

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/proxy"

	proxypkg "github.com/romeomihailus/socks5gateway/internal/proxy"
)

// Dial opens a TCP connection to destination ("host:port") tunnelled
// through px, per §4.4's DIAL_UPSTREAM dispatch. The returned conn is a
// raw pipe ready for bidirectional tunneling.
func Dial(ctx context.Context, px proxypkg.Proxy, destination string) (net.Conn, error) {
	addr := net.JoinHostPort(px.Host, strconv.Itoa(px.Port))
	switch px.Kind {
	case proxypkg.SOCKS5:
		return dialSOCKS5(ctx, addr, destination)
	case proxypkg.HTTP:
		return dialHTTPConnect(ctx, addr, destination)
	case proxypkg.HTTPS:
		// The original implementation declares HTTPS as a kind but never
		// dials it; whether it means HTTP-CONNECT-over-TLS or a
		// TLS-terminating proxy is ambiguous (spec §9, open question).
		// Unimplemented: reject at DIAL_UPSTREAM.
		return nil, fmt.Errorf("upstream: HTTPS upstream dialing is unimplemented")
	case proxypkg.SOCKS4:
		// Declared in the type set but never dialed (spec §9, open
		// question): reject at DIAL_UPSTREAM.
		return nil, fmt.Errorf("upstream: SOCKS4 upstream is not supported")
	default:
		return nil, fmt.Errorf("upstream: unknown proxy kind %v", px.Kind)
	}
}

// dialHTTPConnect sends an HTTP CONNECT request per spec §6's exact wire
// format and returns the connection once the tunnel is established.
func dialHTTPConnect(ctx context.Context, upstreamAddr, destination string) (net.Conn, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", upstreamAddr)
	if err != nil {
		return nil, fmt.Errorf("dial upstream proxy %s: %w", upstreamAddr, err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\nProxy-Connection: Keep-Alive\r\n\r\n",
		destination, destination)
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write CONNECT: %w", err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT status line: %w", err)
	}
	// Drain the remaining response headers up to the blank line.
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("read CONNECT response: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	if !strings.Contains(statusLine, "200") {
		conn.Close()
		return nil, fmt.Errorf("upstream proxy CONNECT failed: %s", strings.TrimSpace(statusLine))
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// dialSOCKS5 dials through a SOCKS5 upstream proxy using the client-side
// handshake from golang.org/x/net/proxy.
func dialSOCKS5(ctx context.Context, upstreamAddr, destination string) (net.Conn, error) {
	dialer, err := proxy.SOCKS5("tcp", upstreamAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("create socks5 dialer: %w", err)
	}

	type contextDialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}
	if cd, ok := dialer.(contextDialer); ok {
		conn, err := cd.DialContext(ctx, "tcp", destination)
		if err != nil {
			return nil, fmt.Errorf("socks5 dial %s: %w", destination, err)
		}
		return conn, nil
	}

	conn, err := dialer.Dial("tcp", destination)
	if err != nil {
		return nil, fmt.Errorf("socks5 dial %s: %w", destination, err)
	}
	return conn, nil
}

// bufferedConn wraps a net.Conn and prepends already-buffered bytes to the
// read stream. Used when bufio.Reader consumed extra bytes past the
// CONNECT response headers.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}
