package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/streamgate/internal/config"
	"github.com/breeze-rmm/streamgate/internal/logging"
)

var version = "0.1.0"

var log = logging.L("main")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "streamgate-server",
	Short: "Web-accessible game-streaming gateway",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway's signaling endpoint and streamer supervisor",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("streamgate-server v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/streamgate/streamgate.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if cfg.LogShipURL != "" {
		logging.InitShipper(logging.ShipperConfig{
			ServerURL:      cfg.LogShipURL,
			AuthToken:      cfg.LogShipToken,
			GatewayVersion: version,
			MinLevel:       cfg.LogShipMinLevel,
		})
	}
}

func runServe() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	initLogging(cfg)

	gw := NewGateway(cfg)
	defer gw.Close()

	mux := http.NewServeMux()
	mux.Handle("/signaling", gw.Handler(cfg.SignalQueueSize))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(gw.HealthSummary())
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Info("signaling listener starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("signaling listener failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("signaling listener shutdown error", "error", err)
	}
	logging.StopShipper()
}

func durationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// advertiseHost extracts the host portion of a ":port" or "host:port"
// listen address for building the URL a streamer hands the browser client
// for its WebTransport bind; an address with no host defaults to loopback,
// suitable for the common reverse-proxied deployment where the proxy's
// public hostname — not this process's bind address — is what the browser
// actually resolves.
func advertiseHost(listenAddr string) string {
	if idx := strings.LastIndex(listenAddr, ":"); idx >= 0 && listenAddr[:idx] != "" {
		return listenAddr[:idx]
	}
	return "127.0.0.1"
}
