// Package metrics exposes process-wide Prometheus counters and gauges for
// the pool, checker, and gateway. It never participates in Proxy identity,
// ordering, or persistence — it is pure observability. Exposition over
// HTTP is handled by internal/api, which mounts promhttp.Handler()
// alongside the pool-inspection endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "socks5gateway_pool_size",
		Help: "Current number of proxies held in the pool",
	})
	ProbesSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5gateway_probes_succeeded_total",
		Help: "Total liveness probes that succeeded",
	})
	ProbesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5gateway_probes_failed_total",
		Help: "Total liveness probes that failed",
	})
	Rotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5gateway_rotations_total",
		Help: "Total times a proxy was selected via pop_least_used/touch_used/reinsert",
	})
	GatewayConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5gateway_gateway_connections_total",
		Help: "Total downstream SOCKS5 connections accepted",
	})
	GatewayTunnelsEstablished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5gateway_gateway_tunnels_established_total",
		Help: "Total downstream connections that reached the TUNNEL state",
	})
	GatewayTunnelBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socks5gateway_gateway_tunnel_bytes_total",
		Help: "Total bytes copied in either direction across all tunnels",
	})
)

func init() {
	prometheus.MustRegister(
		PoolSize,
		ProbesSucceeded,
		ProbesFailed,
		Rotations,
		GatewayConnections,
		GatewayTunnelsEstablished,
		GatewayTunnelBytes,
	)
}
