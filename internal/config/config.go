// Package config loads and persists the process-wide immutable
// configuration record. Once Load returns, the Config value is never
// mutated again — readers need no lock.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized option (spec §3) plus the ambient options
// this implementation adds on top: PoolFile (persistence artifact path),
// MetricsPort (optional Prometheus exposition port, 0 = disabled) and
// ProbeURL (the IP-echo endpoint used by liveness probes).
type Config struct {
	CheckTimeout       int64 `yaml:"check_timeout"`
	CheckInterval      int64 `yaml:"check_interval"`
	UpdateInterval     int64 `yaml:"update_interval"`
	SocksServerPort    int   `yaml:"socks_server_port"`
	SocksServerTimeout int64 `yaml:"socks_server_timeout"`

	ProviderDocIPEnabled        bool `yaml:"provider_docip_enabled"`
	ProviderCheckerProxyEnabled bool `yaml:"provider_checkerproxy_enabled"`

	PoolFile    string `yaml:"pool_file"`
	MetricsPort int    `yaml:"metrics_port"`
	ProbeURL    string `yaml:"probe_url"`
}

// Default returns the configuration used when no config file is present,
// matching the original implementation's defaults.
func Default() Config {
	return Config{
		CheckTimeout:                10,
		CheckInterval:               300,
		UpdateInterval:              6000,
		SocksServerPort:             2333,
		SocksServerTimeout:          10,
		ProviderDocIPEnabled:        true,
		ProviderCheckerProxyEnabled: true,
		PoolFile:                    "pool.json",
		MetricsPort:                 0,
		ProbeURL:                    "https://myip.ipip.net/s",
	}
}

// Load reads the YAML config file at path (the runtime passes config.yaml
// in the working directory). If the file does not
// exist, defaults are written back to disk and returned. Any I/O or parse
// failure is logged by the caller; Load itself only returns the error so
// the caller can decide to continue with defaults (spec's CONFIG_IO
// taxonomy entry: "log, continue with defaults").
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if werr := Save(path, cfg); werr != nil {
			return cfg, werr
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, overwriting any existing file.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
