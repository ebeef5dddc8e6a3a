// Package config loads the gateway's process-wide configuration: the two
// HTTP surfaces' listen addresses, the upstream endpoint, warmup tuning,
// and the on-disk credential file path.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config is the root configuration for the Warp-bridge gateway.
type Config struct {
	Compat      CompatConfig      `json:"compat"`
	Bridge      BridgeConfig      `json:"bridge"`
	Upstream    UpstreamConfig    `json:"upstream"`
	Credentials CredentialsConfig `json:"credentials"`

	mu sync.RWMutex
}

// CompatConfig configures the OpenAI-compatible front-end.
type CompatConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// BridgeURL is where Compat reaches Bridge. Fallbacks are tried in
	// order on connection failure.
	BridgeURL         string   `json:"bridge_url"`
	FallbackBridgeURL []string `json:"fallback_bridge_urls,omitempty"`

	WarmupInitRetries   int     `json:"warmup_init_retries,omitempty"`
	WarmupInitDelay     float64 `json:"warmup_init_delay_s,omitempty"`
	WarmupRequestRetry  int     `json:"warmup_request_retries,omitempty"`
	WarmupRequestDelay  float64 `json:"warmup_request_delay_s,omitempty"`
}

// BridgeConfig configures the upstream-facing back-end.
type BridgeConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// ProtoDir is where the Warp .proto descriptors are vendored on disk.
	// Not shipped by this module — the operator supplies it, same as
	// original_source/warp2protobuf/config/settings.py's PROTO_DIR.
	ProtoDir string `json:"proto_dir"`
}

// UpstreamConfig configures the Warp multi-agent HTTPS endpoint.
type UpstreamConfig struct {
	URL           string `json:"url"`
	ClientVersion string `json:"client_version"`
	OSCategory    string `json:"os_category"`
	OSName        string `json:"os_name"`
	OSVersion     string `json:"os_version"`

	// InsecureTLS skips certificate verification. Env override only, never
	// persisted to the config file by this process.
	InsecureTLS bool `json:"-"`
}

// CredentialsConfig configures the .env-backed credential store.
type CredentialsConfig struct {
	EnvFilePath string `json:"env_file_path"`

	// JWT and RefreshToken are seed values only; the live values always
	// come from the .env file once it exists. Never persisted back here.
	JWT          string `json:"-"`
	RefreshToken string `json:"-"`
}

// Lock/Unlock/RLock/RUnlock expose the embedded mutex so handlers can guard
// reads while a background reload replaces the Config's fields.
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Compat: CompatConfig{
			Host:               "0.0.0.0",
			Port:                8010,
			BridgeURL:          "http://127.0.0.1:8000",
			WarmupInitRetries:  10,
			WarmupInitDelay:    0.5,
			WarmupRequestRetry: 3,
			WarmupRequestDelay: 1.5,
		},
		Bridge: BridgeConfig{
			Host:     "0.0.0.0",
			Port:     8000,
			ProtoDir: "proto",
		},
		Upstream: UpstreamConfig{
			URL:           "https://app.warp.dev/ai/multi-agent",
			ClientVersion: "v0.2025.08.06.08.12.stable_02",
			OSCategory:    "Windows",
			OSName:        "Windows",
			OSVersion:     "11 (26100)",
		},
		Credentials: CredentialsConfig{
			EnvFilePath: ".env",
		},
	}
}

// Load reads config from a JSON file, then overlays env vars. A missing
// file is not an error — defaults plus env overrides are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides overlays environment variables onto the config. Env
// vars take precedence over file values, per SPEC_FULL.md §6.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("HOST"); v != "" {
		c.Compat.Host = v
		c.Bridge.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Bridge.Port = p
		}
	}
	if v := os.Getenv("WARP_BRIDGE_URL"); v != "" {
		c.Compat.BridgeURL = v
	}
	if v := os.Getenv("WARP_PROTO_DIR"); v != "" {
		c.Bridge.ProtoDir = v
	}
	if v := os.Getenv("WARP_COMPAT_INIT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Compat.WarmupInitRetries = n
		}
	}
	if v := os.Getenv("WARP_COMPAT_INIT_DELAY"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			c.Compat.WarmupInitDelay = d
		}
	}
	if v := os.Getenv("WARP_COMPAT_WARMUP_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Compat.WarmupRequestRetry = n
		}
	}
	if v := os.Getenv("WARP_COMPAT_WARMUP_DELAY"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			c.Compat.WarmupRequestDelay = d
		}
	}
	if v := os.Getenv("WARP_JWT"); v != "" {
		c.Credentials.JWT = v
	}
	if v := os.Getenv("WARP_REFRESH_TOKEN"); v != "" {
		c.Credentials.RefreshToken = v
	}
	if v := os.Getenv("WARP_INSECURE_TLS"); v != "" {
		c.Upstream.InsecureTLS = v == "1" || v == "true"
	}
	if len(c.Compat.FallbackBridgeURL) == 0 {
		c.Compat.FallbackBridgeURL = []string{c.Compat.BridgeURL}
	}
}

// WarmupInitDelayDuration returns WarmupInitDelay as a time.Duration.
func (c CompatConfig) WarmupInitDelayDuration() time.Duration {
	return time.Duration(c.WarmupInitDelay * float64(time.Second))
}

// WarmupRequestDelayDuration returns WarmupRequestDelay as a time.Duration.
func (c CompatConfig) WarmupRequestDelayDuration() time.Duration {
	return time.Duration(c.WarmupRequestDelay * float64(time.Second))
}
