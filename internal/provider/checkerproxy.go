package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/romeomihailus/socks5gateway/internal/proxy"
)

// CheckerProxyProvider implements the two-call CheckerProxy-style archive
// protocol described in spec §4.2, grounded on
// original_source/src/provider/checkerproxy.rs.
type CheckerProxyProvider struct {
	client  *http.Client
	baseURL string
}

// NewCheckerProxyProvider constructs the provider with its own direct
// (non-proxied) HTTP client.
func NewCheckerProxyProvider() *CheckerProxyProvider {
	return &CheckerProxyProvider{client: directHTTPClient(), baseURL: "https://checkerproxy.net/api"}
}

func (p *CheckerProxyProvider) Identifier() string { return "checkerproxy.net" }

type checkerProxyArchive struct {
	Date string `json:"date"`
}

type checkerProxyRecord struct {
	Addr    string `json:"addr"`
	Type    int    `json:"type"`
	Country string `json:"addr_geo_iso"`
}

// Fetch retrieves the latest archive listing, picks the lexicographically
// greatest date, then fetches and parses that archive's proxy records.
func (p *CheckerProxyProvider) Fetch(ctx context.Context) ([]proxy.Proxy, error) {
	var archives []checkerProxyArchive
	if err := p.getJSON(ctx, p.baseURL+"/archive", &archives); err != nil {
		return nil, fmt.Errorf("checkerproxy: list archives: %w", err)
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("checkerproxy: no archives returned")
	}

	latest := archives[0].Date
	for _, a := range archives[1:] {
		if a.Date > latest {
			latest = a.Date
		}
	}

	var records []checkerProxyRecord
	url := p.baseURL + "/archive/" + latest
	if err := p.getJSON(ctx, url, &records); err != nil {
		return nil, fmt.Errorf("checkerproxy: fetch archive %s: %w", latest, err)
	}

	out := make([]proxy.Proxy, 0, len(records))
	for _, rec := range records {
		host, portStr, ok := strings.Cut(rec.Addr, ":")
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		kind, ok := checkerProxyKind(rec.Type)
		if !ok {
			// Unknown type code (e.g. 3): skip the record, not fatal.
			continue
		}
		out = append(out, proxy.Proxy{
			Kind:    kind,
			Host:    host,
			Port:    port,
			Country: rec.Country,
		})
	}
	return out, nil
}

func checkerProxyKind(code int) (proxy.Kind, bool) {
	switch code {
	case 1:
		return proxy.HTTP, true
	case 2:
		return proxy.HTTPS, true
	case 4:
		return proxy.SOCKS5, true
	default:
		return 0, false
	}
}

func (p *CheckerProxyProvider) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
