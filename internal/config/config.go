package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/breeze-rmm/streamgate/internal/httputil"
	"github.com/breeze-rmm/streamgate/internal/logging"
)

var log = logging.L("config")

// ICEServer mirrors the subset of RTCIceServer fields the gateway forwards
// to browser clients during signaling.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username,omitempty"`
	Credential string   `mapstructure:"credential,omitempty"`
}

// Config is the gateway's runtime configuration, loaded from YAML with
// environment variable overrides (STREAMGATE_ prefix).
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// WebRTC transport
	WebRTCEnabled    bool        `mapstructure:"webrtc_enabled"`
	WebRTCPortMin    uint16      `mapstructure:"webrtc_port_min"`
	WebRTCPortMax    uint16      `mapstructure:"webrtc_port_max"`
	ICEServers       []ICEServer `mapstructure:"ice_servers"`
	ICEGatherTimeout int         `mapstructure:"ice_gather_timeout_seconds"`

	// ICEServersURL, if set, is refreshed periodically in the background
	// and replaces ICEServers — for deployments whose TURN credentials
	// rotate out from under a static config file.
	ICEServersURL           string `mapstructure:"ice_servers_url"`
	ICEServersRefreshMinutes int   `mapstructure:"ice_servers_refresh_minutes"`

	// WebTransport transport
	WebTransportEnabled  bool   `mapstructure:"webtransport_enabled"`
	WebTransportAddr     string `mapstructure:"webtransport_addr"`
	WebTransportCertFile string `mapstructure:"webtransport_cert_file"`
	WebTransportKeyFile  string `mapstructure:"webtransport_key_file"`

	// Transport selection / fallback
	TransportFallbackMs int `mapstructure:"transport_fallback_ms"`

	// Streamer process supervision
	StreamerPath        string `mapstructure:"streamer_path"`
	StreamerStartupMs   int    `mapstructure:"streamer_startup_timeout_ms"`
	StreamerIdleMinutes int    `mapstructure:"streamer_idle_minutes"`
	MaxConcurrentStreams int   `mapstructure:"max_concurrent_streams"`

	// Host protocol defaults applied when a client omits them in setup
	DefaultFPS        int `mapstructure:"default_fps"`
	DefaultBitrateKbps int `mapstructure:"default_bitrate_kbps"`
	DefaultWidth      int `mapstructure:"default_width"`
	DefaultHeight     int `mapstructure:"default_height"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Optional remote log shipping, for deployments that centralize gateway
	// logs outside the host's own filesystem. Empty LogShipURL disables it.
	LogShipURL      string `mapstructure:"log_ship_url"`
	LogShipToken    string `mapstructure:"log_ship_token"`
	LogShipMinLevel string `mapstructure:"log_ship_min_level"`

	// Concurrency limits
	WorkerPoolSize  int `mapstructure:"worker_pool_size"`
	SignalQueueSize int `mapstructure:"signal_queue_size"`

	// Audit configuration
	AuditEnabled    bool `mapstructure:"audit_enabled"`
	AuditMaxSizeMB  int  `mapstructure:"audit_max_size_mb"`
	AuditMaxBackups int  `mapstructure:"audit_max_backups"`

	// Rate limiting for the signaling endpoint
	SignalRateLimitAttempts int `mapstructure:"signal_rate_limit_attempts"`
	SignalRateLimitWindowMs int `mapstructure:"signal_rate_limit_window_ms"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8443",

		WebRTCEnabled:            true,
		WebRTCPortMin:            50000,
		WebRTCPortMax:            50100,
		ICEGatherTimeout:         5,
		ICEServersRefreshMinutes: 30,

		WebTransportEnabled: true,
		WebTransportAddr:    ":8444",

		TransportFallbackMs: 2500,

		StreamerPath:         "streamgate-streamer",
		StreamerStartupMs:    10000,
		StreamerIdleMinutes:  5,
		MaxConcurrentStreams: 8,

		DefaultFPS:         60,
		DefaultBitrateKbps: 20000,
		DefaultWidth:       1920,
		DefaultHeight:      1080,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		LogShipMinLevel: "warn",

		WorkerPoolSize:  16,
		SignalQueueSize: 64,

		AuditEnabled:    true,
		AuditMaxSizeMB:  50,
		AuditMaxBackups: 3,

		SignalRateLimitAttempts: 10,
		SignalRateLimitWindowMs: 60000,
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("streamgate")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STREAMGATE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("listen_addr", cfg.ListenAddr)
	viper.Set("webrtc_enabled", cfg.WebRTCEnabled)
	viper.Set("webrtc_port_min", cfg.WebRTCPortMin)
	viper.Set("webrtc_port_max", cfg.WebRTCPortMax)
	viper.Set("ice_servers", cfg.ICEServers)
	viper.Set("webtransport_enabled", cfg.WebTransportEnabled)
	viper.Set("webtransport_addr", cfg.WebTransportAddr)
	viper.Set("streamer_path", cfg.StreamerPath)
	viper.Set("max_concurrent_streams", cfg.MaxConcurrentStreams)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "streamgate.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// The webtransport key file is referenced from here; keep the config
	// itself owner-only since it may carry ICE credential turn passwords.
	return os.Chmod(cfgPath, 0600)
}

// FetchICEServers retrieves a fresh ICE server list from ICEServersURL, for
// deployments whose TURN credentials rotate independently of the static
// config file. Transient 5xx/network errors are retried with backoff; the
// caller decides what to do with a hard failure (typically: keep serving
// the last known-good list).
func FetchICEServers(ctx context.Context, client *http.Client, url string) ([]ICEServer, error) {
	resp, err := httputil.Do(ctx, client, http.MethodGet, url, nil, nil, httputil.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("config: fetch ice servers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config: fetch ice servers: status %d", resp.StatusCode)
	}

	var servers []ICEServer
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return nil, fmt.Errorf("config: decode ice servers: %w", err)
	}
	return servers, nil
}

// GetDataDir returns the platform-specific data directory for the gateway.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "StreamGate", "data")
	case "darwin":
		return "/Library/Application Support/StreamGate/data"
	default:
		return "/var/lib/streamgate"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "StreamGate")
	case "darwin":
		return "/Library/Application Support/StreamGate"
	default:
		return "/etc/streamgate"
	}
}

// StreamerStartupTimeout returns StreamerStartupMs as a time.Duration.
func (c *Config) StreamerStartupTimeout() time.Duration {
	return time.Duration(c.StreamerStartupMs) * time.Millisecond
}

// StreamerIdleTimeout returns StreamerIdleMinutes as a time.Duration.
func (c *Config) StreamerIdleTimeout() time.Duration {
	return time.Duration(c.StreamerIdleMinutes) * time.Minute
}

// TransportFallbackTimeout returns TransportFallbackMs as a time.Duration.
func (c *Config) TransportFallbackTimeout() time.Duration {
	return time.Duration(c.TransportFallbackMs) * time.Millisecond
}
