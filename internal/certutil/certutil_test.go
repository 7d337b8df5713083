package certutil

import "testing"

func TestGenerateSelfSignedProducesUsableCert(t *testing.T) {
	cert, err := GenerateSelfSigned([]string{"localhost", "127.0.0.1"})
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatal("expected at least one DER certificate")
	}
	if cert.PrivateKey == nil {
		t.Fatal("expected a private key")
	}
}

func TestFingerprintIs64HexChars(t *testing.T) {
	cert, err := GenerateSelfSigned(nil)
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	fp := Fingerprint(cert)
	if len(fp) != 64 {
		t.Fatalf("Fingerprint length = %d, want 64", len(fp))
	}
	for _, r := range fp {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("Fingerprint contains non-hex character %q", r)
		}
	}
}

func TestFingerprintIsDeterministicForSameCert(t *testing.T) {
	cert, err := GenerateSelfSigned([]string{"host.local"})
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if Fingerprint(cert) != Fingerprint(cert) {
		t.Fatal("fingerprint should be stable for the same certificate")
	}
}

func TestIsExpiredEmptyStringIsNotExpired(t *testing.T) {
	if IsExpired("") {
		t.Fatal("empty expiry string should not be considered expired")
	}
}

func TestIsExpiredUnparseableIsExpired(t *testing.T) {
	if !IsExpired("not-a-date") {
		t.Fatal("unparseable expiry should fail closed as expired")
	}
}

func TestIsExpiredPastDate(t *testing.T) {
	if !IsExpired("2000-01-01T00:00:00Z") {
		t.Fatal("a date in 2000 should be expired")
	}
}

func TestIsExpiredFutureDate(t *testing.T) {
	if IsExpired("2999-01-01T00:00:00Z") {
		t.Fatal("a date far in the future should not be expired")
	}
}
