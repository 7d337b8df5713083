// Package certutil handles the TLS material the WebTransport listener needs:
// loading an operator-supplied certificate/key pair, or generating a
// self-signed one for LAN deployments where the client pins against the
// certificate's SHA-256 fingerprint instead of trusting a CA.
package certutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/breeze-rmm/streamgate/internal/logging"
)

var log = logging.L("certutil")

// selfSignedLifetime is generous on purpose: the gateway mints one of these
// at startup and keeps using it for the process lifetime, so there is no
// rotation story to get wrong.
const selfSignedLifetime = 10 * 365 * 24 * time.Hour

// LoadPair parses a PEM-encoded certificate and private key pair from disk
// paths, for deployments that supply their own WebTransport certificate.
func LoadPair(certFile, keyFile string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("certutil: load key pair: %w", err)
	}
	return &cert, nil
}

// GenerateSelfSigned creates a self-signed ECDSA certificate for the given
// hosts/IPs, suitable for a WebTransport bind on a LAN where the client pins
// by fingerprint rather than validating a CA chain.
func GenerateSelfSigned(hosts []string) (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certutil: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certutil: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "streamgate-webtransport"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(selfSignedLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		BasicConstraintsValid: true,
	}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	if len(hosts) == 0 {
		template.IPAddresses = append(template.IPAddresses, net.IPv4(127, 0, 0, 1))
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certutil: create certificate: %w", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certutil: marshal key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("certutil: build key pair: %w", err)
	}

	log.Info("generated self-signed webtransport certificate", "hosts", hosts, "fingerprint", Fingerprint(cert))
	return cert, nil
}

// Fingerprint returns the lowercase hex SHA-256 digest of the certificate's
// leaf DER bytes — the value the client pins against and the gateway places
// in the Setup message's cert_hash field.
func Fingerprint(cert tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	return hex.EncodeToString(sum[:])
}

// parseExpiryTime parses an expiry timestamp in RFC 3339 or a bare
// date-time, matching the formats the gateway's config layer may supply for
// an operator-provided certificate's metadata.
func parseExpiryTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
	}
	return t, err
}

// IsExpired reports whether a certificate described by an RFC 3339 expiry
// string has passed that time. Fails closed: an unparseable date is treated
// as expired.
func IsExpired(expiresStr string) bool {
	if expiresStr == "" {
		return false
	}
	t, err := parseExpiryTime(expiresStr)
	if err != nil {
		log.Warn("unable to parse certificate expiry, treating as expired", "expires", expiresStr, "error", err)
		return true
	}
	return time.Now().After(t)
}
