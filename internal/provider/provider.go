// Package provider implements the pluggable proxy-list fetchers (§4.2).
// A provider retrieves a remote proxy list over HTTPS, parses it, and
// yields Proxy values with LastChecked = LastUsed = 0.
package provider

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/romeomihailus/socks5gateway/internal/proxy"
)

// Provider is a capability that fetches a batch of proxy candidates from a
// single external source.
type Provider interface {
	Identifier() string
	Fetch(ctx context.Context) ([]proxy.Proxy, error)
}

// directHTTPClient is shared by every provider implementation. It never
// routes through an upstream proxy — provider-list fetches must reach the
// real internet directly, mirroring original_source's
// reqwest::ClientBuilder::new().no_proxy() client.
func directHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Proxy: nil,
		},
	}
}

// Registry holds the set of enabled providers and runs the update cycle.
type Registry struct {
	providers []Provider
}

// NewRegistry builds a registry from the enabled providers only; disabled
// providers are never constructed, matching configuration's
// immutable-post-init contract.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// FetchAll runs every provider concurrently and returns the union of
// successfully fetched candidates. A single provider's failure is logged
// and does not abort the cycle (spec §4.2 step 4 / §7 PROVIDER_FETCH).
func (r *Registry) FetchAll(ctx context.Context) []proxy.Proxy {
	var (
		mu  sync.Mutex
		all []proxy.Proxy
		wg  sync.WaitGroup
	)

	for _, p := range r.providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			candidates, err := p.Fetch(ctx)
			if err != nil {
				log.Printf("[provider] %s fetch failed: %v", p.Identifier(), err)
				return
			}
			log.Printf("[provider] %s fetched %d candidates", p.Identifier(), len(candidates))
			mu.Lock()
			all = append(all, candidates...)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return all
}
