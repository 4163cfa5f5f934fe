// Package cmd implements the socks5gateway entry point using Cobra.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/romeomihailus/socks5gateway/internal/api"
	"github.com/romeomihailus/socks5gateway/internal/checker"
	"github.com/romeomihailus/socks5gateway/internal/config"
	"github.com/romeomihailus/socks5gateway/internal/gateway"
	"github.com/romeomihailus/socks5gateway/internal/metrics"
	"github.com/romeomihailus/socks5gateway/internal/pool"
	"github.com/romeomihailus/socks5gateway/internal/provider"
)

// version is injected at build time via ldflags.
var version = "dev"

// configFileName is read from the working directory. The binary takes no
// CLI flags — every runtime parameter comes from this file.
const configFileName = "config.yaml"

var rootCmd = &cobra.Command{
	Use:   "socks5gateway",
	Short: "Local SOCKS5 gateway backed by a rotating upstream proxy pool",
	Long: `socks5gateway listens on a local SOCKS5 endpoint and relays each
inbound connection through a fresh upstream proxy drawn from a
continuously curated pool.

A background provider registry keeps the pool fed from third-party
proxy-list sources; a health checker evicts upstreams that stop
answering a liveness probe. Configuration is read from config.yaml in
the working directory — if the file is absent, defaults are written
and used.
`,
	Version:      version,
	SilenceUsage: true,
	RunE:         run,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(configFileName)
	if err != nil {
		log.Printf("[init] config %s: %v; continuing with defaults", configFileName, err)
	} else {
		log.Printf("[init] config loaded from %s", configFileName)
	}
	cfg := &loaded

	p := pool.New()
	log.Printf("[init] loading pool from %s", cfg.PoolFile)
	if err := p.LoadFile(cfg.PoolFile); err != nil {
		return fmt.Errorf("load pool file %s: %w", cfg.PoolFile, err)
	}
	log.Printf("[init] loaded %d proxies", p.Len())

	var providers []provider.Provider
	if cfg.ProviderCheckerProxyEnabled {
		providers = append(providers, provider.NewCheckerProxyProvider())
	}
	if cfg.ProviderDocIPEnabled {
		providers = append(providers, provider.NewDocIPProvider())
	}
	registry := provider.NewRegistry(providers...)

	chk := checker.New(cfg.ProbeURL, time.Duration(cfg.CheckTimeout)*time.Second, checker.DefaultConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run one update cycle synchronously so startup doesn't race an empty
	// pool, then hand both background loops off to tickers.
	runUpdateCycle(ctx, p, registry, chk, cfg.PoolFile)
	startUpdateLoop(ctx, cfg, p, registry, chk)
	startCheckLoop(ctx, cfg, p, chk)

	if cfg.MetricsPort != 0 {
		metricsAddr := fmt.Sprintf("127.0.0.1:%d", cfg.MetricsPort)
		apiSrv := api.New(metricsAddr, p)
		go func() {
			log.Printf("[init] metrics/pool server listening on http://%s", metricsAddr)
			if err := apiSrv.Start(); err != nil {
				log.Printf("[api] server stopped: %v", err)
			}
		}()
		defer apiSrv.Stop()
	}

	gw := gateway.New(gateway.Config{
		ListenAddr:     fmt.Sprintf("127.0.0.1:%d", cfg.SocksServerPort),
		RequestTimeout: time.Duration(cfg.SocksServerTimeout) * time.Second,
		DialTimeout:    time.Duration(cfg.SocksServerTimeout) * time.Second,
	}, p)

	printBanner(cfg, p)

	gwErr := make(chan error, 1)
	go func() { gwErr <- gw.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[init] received %s — shutting down", sig)
	case err := <-gwErr:
		if err != nil {
			log.Printf("[init] gateway error: %v", err)
		}
	}

	cancel()
	gw.Stop()
	if err := p.SaveFile(cfg.PoolFile); err != nil {
		log.Printf("[init] final pool save failed: %v", err)
	}
	return nil
}

// startUpdateLoop runs the provider-fetch + candidate-probe cycle on
// cfg.UpdateInterval, following the teacher's ticker-driven background
// loop style (rotator.intervalLoop, monitor.loop). time.Ticker drops
// missed ticks rather than queuing them, giving the delay-on-miss
// cadence for free.
func startUpdateLoop(ctx context.Context, cfg *config.Config, p *pool.Pool, reg *provider.Registry, chk *checker.Checker) {
	interval := time.Duration(cfg.UpdateInterval) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runUpdateCycle(ctx, p, reg, chk, cfg.PoolFile)
			}
		}
	}()
}

func runUpdateCycle(ctx context.Context, p *pool.Pool, reg *provider.Registry, chk *checker.Checker, poolFile string) {
	log.Printf("[update] fetching candidates from providers")
	candidates := reg.FetchAll(ctx)
	now := time.Now().Unix()
	survivors := chk.ProbeCandidates(ctx, candidates, now)
	for _, px := range survivors {
		p.Insert(px)
	}
	metrics.PoolSize.Set(float64(p.Len()))
	log.Printf("[update] %d/%d candidates passed the liveness probe; pool size now %d", len(survivors), len(candidates), p.Len())
	if err := p.SaveFile(poolFile); err != nil {
		log.Printf("[update] pool save failed: %v", err)
	}
}

// startCheckLoop runs the pool-wide liveness re-check on cfg.CheckInterval.
func startCheckLoop(ctx context.Context, cfg *config.Config, p *pool.Pool, chk *checker.Checker) {
	interval := time.Duration(cfg.CheckInterval) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("[check] re-checking pool liveness")
				chk.CheckPool(ctx, p, time.Now().Unix())
				metrics.PoolSize.Set(float64(p.Len()))
				if err := p.SaveFile(cfg.PoolFile); err != nil {
					log.Printf("[check] pool save failed: %v", err)
				}
			}
		}
	}()
}

// -----------------------------------------------------------------------
// Startup banner
// -----------------------------------------------------------------------

func printBanner(cfg *config.Config, p *pool.Pool) {
	metricsStr := "disabled"
	if cfg.MetricsPort != 0 {
		metricsStr = fmt.Sprintf("http://127.0.0.1:%d/metrics", cfg.MetricsPort)
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════════════╗
║                    socks5gateway %s
╠══════════════════════════════════════════════════════════════╣
║  SOCKS5 listen : 127.0.0.1:%-6d
║  Pool file     : %s
║  Pool size     : %d proxies
║  Probe URL     : %s
║  Metrics       : %s
╚══════════════════════════════════════════════════════════════╝

`, padRight(version, 44),
		cfg.SocksServerPort,
		cfg.PoolFile,
		p.Len(),
		cfg.ProbeURL,
		metricsStr,
	)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
