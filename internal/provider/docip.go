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

// DocIPProvider implements the single-call DocIP-style JSON feed described
// in spec §4.2, grounded on original_source/src/provider/docip.rs.
type DocIPProvider struct {
	client *http.Client
	url    string
}

// NewDocIPProvider constructs the provider with its own direct
// (non-proxied) HTTP client.
func NewDocIPProvider() *DocIPProvider {
	return &DocIPProvider{client: directHTTPClient(), url: "https://www.docip.net/data/free.json"}
}

func (p *DocIPProvider) Identifier() string { return "docip.net" }

type docIPDocument struct {
	Data []docIPRecord `json:"data"`
}

type docIPRecord struct {
	IP        string `json:"ip"`
	Addr      string `json:"addr"`
	ProxyType string `json:"proxy_type"`
}

// Fetch retrieves the DocIP free-proxy JSON document and parses its records.
func (p *DocIPProvider) Fetch(ctx context.Context) ([]proxy.Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docip: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docip: unexpected status %s", resp.Status)
	}

	var doc docIPDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("docip: decode: %w", err)
	}

	out := make([]proxy.Proxy, 0, len(doc.Data))
	for _, rec := range doc.Data {
		host, portStr, ok := strings.Cut(rec.IP, ":")
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		kind, ok := docIPKind(rec.ProxyType)
		if !ok {
			continue
		}
		out = append(out, proxy.Proxy{
			Kind:    kind,
			Host:    host,
			Port:    port,
			Country: rec.Addr,
		})
	}
	return out, nil
}

func docIPKind(code string) (proxy.Kind, bool) {
	switch code {
	case "1":
		return proxy.HTTPS, true
	case "2":
		return proxy.HTTP, true
	default:
		return 0, false
	}
}
