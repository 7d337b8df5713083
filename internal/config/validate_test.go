package config

import "testing"

func TestValidateTieredEmptyListenAddrIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("expected fatal error for empty listen_addr")
	}
}

func TestValidateTieredEmptyStreamerPathIsFatal(t *testing.T) {
	cfg := Default()
	cfg.StreamerPath = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("expected fatal error for empty streamer_path")
	}
}

func TestValidateTieredInvertedPortRangeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.WebRTCPortMin = 50100
	cfg.WebRTCPortMax = 50000
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("expected fatal error for inverted webrtc port range")
	}
}

func TestValidateTieredNoTransportEnabledIsFatal(t *testing.T) {
	cfg := Default()
	cfg.WebRTCEnabled = false
	cfg.WebTransportEnabled = false
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("expected fatal error when no transport is enabled")
	}
}

func TestValidateTieredMaxConcurrentStreamsClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentStreams = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("clamped value should not be fatal")
	}
	if cfg.MaxConcurrentStreams != 1 {
		t.Fatalf("max_concurrent_streams = %d, want 1", cfg.MaxConcurrentStreams)
	}
}

func TestValidateTieredUnknownLogLevelIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should be a warning, not fatal")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log_level = %q, want default info", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarning(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should be a warning, not fatal")
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("log_format = %q, want default text", cfg.LogFormat)
	}
}

func TestHasFatals(t *testing.T) {
	var r TieredResult
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, errFatalForTest)
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	r := TieredResult{
		Fatals:   []error{errFatalForTest},
		Warnings: []error{errFatalForTest},
	}
	if len(r.AllErrors()) != 2 {
		t.Fatalf("AllErrors() returned %d errors, want 2", len(r.AllErrors()))
	}
}

func TestDefaultConfigHasNoFatals(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config should have no fatal errors, got %v", result.Fatals)
	}
}

var errFatalForTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
