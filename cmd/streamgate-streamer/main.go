package main

import (
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/streamgate/internal/certutil"
	"github.com/breeze-rmm/streamgate/internal/gamestream"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/logging"
	"github.com/breeze-rmm/streamgate/internal/session"
	"github.com/breeze-rmm/streamgate/internal/wire"
)

var version = "0.1.0"

var log = logging.L("streamgate-streamer")

var sessionToken string

var rootCmd = &cobra.Command{
	Use:   "streamgate-streamer",
	Short: "Per-session streaming process spawned by streamgate-server",
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run one session's GameStream pairing, transport negotiation, and forwarding pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		runStream()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("streamgate-streamer v%s\n", version)
	},
}

func init() {
	logging.Init("text", "info", os.Stdout)
	streamCmd.Flags().StringVar(&sessionToken, "session-token", "", "session token this process was spawned for")
	streamCmd.MarkFlagRequired("session-token")

	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runStream owns the process's single session end to end: it authenticates
// the IPC pipe to the supervisor, waits for Init, drives the session machine
// until it closes, and relays signaling frames and shutdown requests in
// between.
func runStream() {
	keyHex := os.Getenv(ipc.SessionKeyEnvVar)
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		log.Error("invalid session key", "error", err)
		os.Exit(1)
	}

	conn := ipc.NewConn(ipc.NewPipeConn(os.Stdin, os.Stdout, "supervisor"))
	conn.SetSessionKey(key)

	initEnv, err := conn.Recv()
	if err != nil {
		log.Error("failed to receive init message", "error", err)
		os.Exit(1)
	}
	if initEnv.Type != ipc.TypeInit {
		log.Error("expected init as first message", "type", initEnv.Type)
		os.Exit(1)
	}
	var cfg ipc.InitPayload
	if err := decodePayload(initEnv, &cfg); err != nil {
		log.Error("failed to decode init payload", "error", err)
		os.Exit(1)
	}

	factory := newLiveTransportFactoryFromEnv()
	reporter := session.NewIPCReporter(conn)
	host := gamestream.Unimplemented{}

	m := session.New(host, factory, reporter, cfg.ICEServers)
	m.Start(cfg)

	go ipcRecvLoop(conn, m)

	<-m.Done()
	log.Info("session closed, exiting", "token", sessionToken)
}

// ipcRecvLoop forwards signaling/shutdown traffic from the supervisor into
// the machine for the lifetime of the connection.
func ipcRecvLoop(conn *ipc.Conn, m *session.Machine) {
	for {
		env, err := conn.Recv()
		if err != nil {
			m.Close("ipc connection closed")
			return
		}

		switch env.Type {
		case ipc.TypeSignaling:
			var payload ipc.SignalingPayload
			if err := decodePayload(env, &payload); err != nil {
				log.Warn("malformed signaling envelope", "error", err)
				continue
			}
			msg, err := wire.DecodeClientMessage(payload.Body)
			if err != nil {
				log.Warn("malformed signaling frame", "error", err)
				continue
			}
			m.HandleClientMessage(msg)

		case ipc.TypeShutdown:
			m.Close("shutdown requested")
			return

		case ipc.TypePing:
			_ = conn.SendTyped(env.ID, ipc.TypePong, struct{}{})
		}
	}
}

func decodePayload(env *ipc.Envelope, out any) error {
	return json.Unmarshal(env.Payload, out)
}

func newLiveTransportFactoryFromEnv() *liveTransportFactory {
	portMin, _ := strconv.Atoi(os.Getenv("STREAMGATE_WEBRTC_PORT_MIN"))
	portMax, _ := strconv.Atoi(os.Getenv("STREAMGATE_WEBRTC_PORT_MAX"))

	host := os.Getenv("STREAMGATE_ADVERTISE_HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	cert, fingerprint := loadOrGenerateCert(host)

	return &liveTransportFactory{
		advertiseHost:   host,
		portMin:         uint16(portMin),
		portMax:         uint16(portMax),
		cert:            cert,
		certFingerprint: fingerprint,
	}
}

func loadOrGenerateCert(host string) (tls.Certificate, string) {
	certFile := os.Getenv("STREAMGATE_WT_CERT_FILE")
	keyFile := os.Getenv("STREAMGATE_WT_KEY_FILE")

	if certFile != "" && keyFile != "" {
		cert, err := certutil.LoadPair(certFile, keyFile)
		if err == nil {
			return *cert, certutil.Fingerprint(*cert)
		}
		log.Warn("failed to load configured webtransport certificate, generating self-signed", "error", err)
	}

	cert, err := certutil.GenerateSelfSigned([]string{host})
	if err != nil {
		log.Error("failed to generate self-signed webtransport certificate", "error", err)
		os.Exit(1)
	}
	return cert, certutil.Fingerprint(cert)
}
