package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// TieredResult separates validation problems by severity: Fatals block
// startup, Warnings are logged and the (possibly clamped) config is used.
type TieredResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal errors were recorded.
func (r TieredResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that don't
// need the severity split.
func (r TieredResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Values that would
// make the gateway unable to start at all (bad listen address, an inverted
// port range, a missing streamer binary path) are fatal. Everything else —
// out-of-range intervals, unknown log levels — is clamped to a safe default
// and recorded as a warning so startup proceeds.
func (c *Config) ValidateTiered() TieredResult {
	var r TieredResult

	if strings.TrimSpace(c.ListenAddr) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("listen_addr must not be empty"))
	}

	if strings.TrimSpace(c.StreamerPath) == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("streamer_path must not be empty"))
	}

	if c.WebRTCEnabled && c.WebRTCPortMin > c.WebRTCPortMax {
		r.Fatals = append(r.Fatals, fmt.Errorf(
			"webrtc_port_min %d is greater than webrtc_port_max %d", c.WebRTCPortMin, c.WebRTCPortMax))
	}

	if !c.WebRTCEnabled && !c.WebTransportEnabled {
		r.Fatals = append(r.Fatals, fmt.Errorf("at least one of webrtc_enabled or webtransport_enabled must be true"))
	}

	if c.WebTransportEnabled {
		if c.WebTransportAddr == "" {
			r.Fatals = append(r.Fatals, fmt.Errorf("webtransport_addr must not be empty when webtransport_enabled"))
		}
	}

	// Clamp ranges that would otherwise cause panics or degenerate behavior
	// downstream (e.g. a zero-length ticker period).
	if c.MaxConcurrentStreams < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_streams %d is below minimum 1, clamping", c.MaxConcurrentStreams))
		c.MaxConcurrentStreams = 1
	} else if c.MaxConcurrentStreams > 256 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_streams %d exceeds maximum 256, clamping", c.MaxConcurrentStreams))
		c.MaxConcurrentStreams = 256
	}

	if c.WorkerPoolSize < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("worker_pool_size %d is below minimum 1, clamping", c.WorkerPoolSize))
		c.WorkerPoolSize = 1
	}

	if c.SignalQueueSize < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("signal_queue_size %d is below minimum 1, clamping", c.SignalQueueSize))
		c.SignalQueueSize = 1
	}

	if c.StreamerStartupMs < 500 {
		r.Warnings = append(r.Warnings, fmt.Errorf("streamer_startup_timeout_ms %d is below minimum 500, clamping", c.StreamerStartupMs))
		c.StreamerStartupMs = 500
	}

	if c.TransportFallbackMs < 250 {
		r.Warnings = append(r.Warnings, fmt.Errorf("transport_fallback_ms %d is below minimum 250, clamping", c.TransportFallbackMs))
		c.TransportFallbackMs = 250
	}

	if c.DefaultFPS < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("default_fps %d is below minimum 1, clamping", c.DefaultFPS))
		c.DefaultFPS = 60
	}

	if c.DefaultBitrateKbps < 500 {
		r.Warnings = append(r.Warnings, fmt.Errorf("default_bitrate_kbps %d is below minimum 500, clamping", c.DefaultBitrateKbps))
		c.DefaultBitrateKbps = 500
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.SignalRateLimitAttempts < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("signal_rate_limit_attempts %d is below minimum 1, clamping", c.SignalRateLimitAttempts))
		c.SignalRateLimitAttempts = 1
	}

	return r
}
