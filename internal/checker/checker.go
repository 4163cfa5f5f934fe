// Package checker implements the bounded-concurrency liveness prober used
// both on freshly fetched candidates (§4.2) and on the live pool (§4.3).
package checker

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/romeomihailus/socks5gateway/internal/metrics"
	"github.com/romeomihailus/socks5gateway/internal/pool"
	"github.com/romeomihailus/socks5gateway/internal/proxy"
	"github.com/romeomihailus/socks5gateway/internal/upstream"
)

// DefaultConcurrency is the global probe concurrency bound (spec §4.3:
// "design value: 10"). It applies uniformly to update-time probing and
// pool-check probing.
const DefaultConcurrency = 10

// Checker probes upstream proxies for liveness through a fixed IP-echo
// endpoint.
type Checker struct {
	ProbeURL    string
	Timeout     time.Duration
	Concurrency int

	// RootCAs overrides the trust store used for the probe's TLS
	// handshake. Nil (the default) falls back to the system trust store,
	// the only setting production use should ever need; tests point it
	// at a self-signed fake echo endpoint's certificate.
	RootCAs *x509.CertPool
}

// New builds a Checker. concurrency <= 0 falls back to DefaultConcurrency.
func New(probeURL string, timeout time.Duration, concurrency int) *Checker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Checker{ProbeURL: probeURL, Timeout: timeout, Concurrency: concurrency}
}

// Probe dials through px and issues a single GET to the configured
// IP-echo endpoint. It succeeds iff a non-empty response body arrives
// before the checker's timeout. Any transport, TLS, or HTTP-layer error
// fails the probe.
func (c *Checker) Probe(ctx context.Context, px proxy.Proxy) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	target, err := url.Parse(c.ProbeURL)
	if err != nil {
		return fmt.Errorf("checker: bad probe URL: %w", err)
	}
	host := target.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		if target.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	conn, err := upstream.Dial(ctx, px, host)
	if err != nil {
		return fmt.Errorf("checker: dial through %s: %w", px, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	// The probe endpoint is HTTPS by default (spec §4.3: "construct an
	// HTTPS client"). The tunneled conn is a raw TCP pipe through the
	// upstream proxy, so the TLS handshake with the probe endpoint has to
	// happen here, same as reqwest would do under the hood in the
	// original implementation.
	if target.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: target.Hostname(), RootCAs: c.RootCAs})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return fmt.Errorf("checker: tls handshake with %s: %w", target.Hostname(), err)
		}
		conn = tlsConn
	}

	path := target.RequestURI()
	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, target.Hostname())
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("checker: write probe request: %w", err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("checker: read probe status line: %w", err)
	}
	if !containsDigit(statusLine) {
		return fmt.Errorf("checker: malformed probe response: %q", statusLine)
	}

	// Drain headers.
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return fmt.Errorf("checker: read probe headers: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	buf := make([]byte, 1)
	n, err := br.Read(buf)
	if n == 0 && err != nil {
		return fmt.Errorf("checker: empty probe body: %w", err)
	}
	return nil
}

// CheckPool runs one full pool-check cycle (§4.3): snapshot the pool's
// identities, probe each with the bounded concurrency gate, update
// last_checked on success, remove on failure. Probes are independent; one
// failure never cancels its peers.
func (c *Checker) CheckPool(ctx context.Context, p *pool.Pool, now int64) {
	snapshot := p.Snapshot()
	sem := make(chan struct{}, c.Concurrency)
	var wg sync.WaitGroup

	for _, px := range snapshot {
		wg.Add(1)
		sem <- struct{}{}
		go func(px proxy.Proxy) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.Probe(ctx, px); err != nil {
				metrics.ProbesFailed.Inc()
				p.Remove(px.Identity())
				log.Printf("[checker] evicted %s: %v", px, err)
				return
			}
			metrics.ProbesSucceeded.Inc()
			px.LastChecked = now
			p.Insert(px)
		}(px)
	}
	wg.Wait()
}

// ProbeCandidates validates a freshly fetched candidate batch with the
// same bounded concurrency gate, returning only the survivors. Each
// survivor is stamped with LastChecked = LastUsed = now, mirroring
// original_source's provider-level intake check (checkerproxy.rs /
// docip.rs both set both timestamps once a fresh candidate passes its
// first probe).
func (c *Checker) ProbeCandidates(ctx context.Context, candidates []proxy.Proxy, now int64) []proxy.Proxy {
	sem := make(chan struct{}, c.Concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		survived []proxy.Proxy
	)

	for _, px := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(px proxy.Proxy) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.Probe(ctx, px); err != nil {
				metrics.ProbesFailed.Inc()
				return
			}
			metrics.ProbesSucceeded.Inc()
			px.LastChecked = now
			px.LastUsed = now
			mu.Lock()
			survived = append(survived, px)
			mu.Unlock()
		}(px)
	}
	wg.Wait()
	return survived
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
