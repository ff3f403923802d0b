package binary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// testSigner is a throwaway GPG identity for signature tests.
type testSigner struct {
	entity      *openpgp.Entity
	keyringPath string
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()

	entity, err := openpgp.NewEntity("Release Bot", "test", "release@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("failed to create armor encoder: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("failed to serialize public key: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close armor encoder: %v", err)
	}

	keyringPath := filepath.Join(t.TempDir(), "keploy.asc")
	if err := os.WriteFile(keyringPath, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write keyring: %v", err)
	}

	return &testSigner{entity: entity, keyringPath: keyringPath}
}

// sign writes an armored detached signature of path to path+".asc".
func (s *testSigner) sign(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, s.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sigPath := path + ".asc"
	if err := os.WriteFile(sigPath, sig.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return sigPath
}

// signBinary writes a binary (unarmored) detached signature of path.
func (s *testSigner) signBinary(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var sig bytes.Buffer
	if err := openpgp.DetachSign(&sig, s.entity, bytes.NewReader(data), nil); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sigPath := path + ".sig"
	if err := os.WriteFile(sigPath, sig.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return sigPath
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestVerifyGPG(t *testing.T) {
	signer := newTestSigner(t)
	other := newTestSigner(t)
	dir := t.TempDir()

	archive := writeFile(t, dir, "keploy_linux_amd64.tar.gz", "release archive")
	armored := signer.sign(t, archive)
	binarySig := signer.signBinary(t, archive)
	tampered := writeFile(t, dir, "tampered.tar.gz", "release archive with a backdoor")

	tests := []struct {
		name        string
		keyring     string
		file        string
		signature   string
		wantSuccess bool
	}{
		{"valid_armored_signature", signer.keyringPath, archive, armored, true},
		{"valid_binary_signature", signer.keyringPath, archive, binarySig, true},
		{"tampered_file", signer.keyringPath, tampered, armored, false},
		{"wrong_key", other.keyringPath, archive, armored, false},
		{"missing_signature", signer.keyringPath, archive, filepath.Join(dir, "missing.asc"), false},
		{"no_keyring", "", archive, armored, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewVerifier(tt.keyring, nil).verifyGPG(tt.file, tt.signature)
			if tt.wantSuccess && err != nil {
				t.Errorf("expected success, got %v", err)
			}
			if !tt.wantSuccess && err == nil {
				t.Error("expected failure, got success")
			}
		})
	}
}

func TestVerifySHA256(t *testing.T) {
	dir := t.TempDir()
	content := "release archive"
	archive := writeFile(t, dir, "keploy_linux_amd64.tar.gz", content)

	tests := []struct {
		name      string
		checksums string
		wantErr   string
	}{
		{
			name:      "valid_checksum",
			checksums: fmt.Sprintf("%s  keploy_linux_amd64.tar.gz\n", sha256Hex(content)),
		},
		{
			name:      "uppercase_binary_mode",
			checksums: fmt.Sprintf("%s *keploy_linux_amd64.tar.gz\n", strings.ToUpper(sha256Hex(content))),
		},
		{
			name: "among_other_assets",
			checksums: fmt.Sprintf("%s  keploy_darwin_all.tar.gz\n%s  keploy_linux_amd64.tar.gz\n",
				sha256Hex("other"), sha256Hex(content)),
		},
		{
			name:      "mismatch",
			checksums: fmt.Sprintf("%s  keploy_linux_amd64.tar.gz\n", sha256Hex("different")),
			wantErr:   "checksum mismatch",
		},
		{
			name:      "missing_entry",
			checksums: fmt.Sprintf("%s  keploy_linux_arm64.tar.gz\n", sha256Hex(content)),
			wantErr:   "checksum not found",
		},
		{
			name:      "malformed_lines",
			checksums: "just-one-field\n\n",
			wantErr:   "checksum not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checksumPath := writeFile(t, t.TempDir(), "checksums.txt", tt.checksums)

			err := verifySHA256(archive, checksumPath)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCalculateSHA256(t *testing.T) {
	path := writeFile(t, t.TempDir(), "f", "hello")

	got, err := calculateSHA256(path)
	if err != nil {
		t.Fatalf("calculateSHA256() error = %v", err)
	}
	if got != sha256Hex("hello") {
		t.Errorf("calculateSHA256() = %s", got)
	}

	if _, err := calculateSHA256(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadKeyring(t *testing.T) {
	signer := newTestSigner(t)
	dir := t.TempDir()

	keyring, err := loadKeyring(signer.keyringPath)
	if err != nil {
		t.Fatalf("loadKeyring() error = %v", err)
	}
	if len(keyring) != 1 {
		t.Errorf("expected 1 entity, got %d", len(keyring))
	}

	if _, err := loadKeyring(filepath.Join(dir, "missing.asc")); err == nil {
		t.Error("expected error for missing keyring")
	}
	if _, err := loadKeyring(writeFile(t, dir, "garbage.asc", "not a key")); err == nil {
		t.Error("expected error for garbage keyring")
	}
}

func TestVerifierVerify(t *testing.T) {
	signer := newTestSigner(t)
	dir := t.TempDir()
	content := "release archive"
	archive := writeFile(t, dir, "keploy.tar.gz", content)
	checksums := writeFile(t, dir, "checksums.txt", sha256Hex(content)+"  keploy.tar.gz\n")
	signature := signer.sign(t, archive)

	t.Run("nothing_configured", func(t *testing.T) {
		methods, err := NewVerifier("", nil).Verify(context.Background(), &artifacts{archive: archive})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(methods) != 0 {
			t.Errorf("expected no methods, got %v", methods)
		}
	})

	t.Run("gpg_and_sha256", func(t *testing.T) {
		methods, err := NewVerifier(signer.keyringPath, nil).Verify(context.Background(), &artifacts{
			archive:   archive,
			checksums: checksums,
			signature: signature,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []VerificationMethod{VerificationGPG, VerificationSHA256}
		if fmt.Sprint(methods) != fmt.Sprint(want) {
			t.Errorf("methods = %v, want %v", methods, want)
		}
	})

	t.Run("checksum_failure_stops", func(t *testing.T) {
		bad := writeFile(t, t.TempDir(), "checksums.txt", sha256Hex("other")+"  keploy.tar.gz\n")
		_, err := NewVerifier("", nil).Verify(context.Background(), &artifacts{archive: archive, checksums: bad})
		if err == nil || !strings.Contains(err.Error(), "SHA256 verification") {
			t.Errorf("expected SHA256 failure, got %v", err)
		}
	})

	t.Run("bundle_without_identity", func(t *testing.T) {
		bundle := writeFile(t, t.TempDir(), "keploy.tar.gz.sigstore.json", "{}")
		_, err := NewVerifier("", nil).Verify(context.Background(), &artifacts{archive: archive, bundle: bundle})
		if err == nil || !strings.Contains(err.Error(), "no certificate identity") {
			t.Errorf("expected identity error, got %v", err)
		}
	})
}

func TestSigstoreVerifier(t *testing.T) {
	if v := NewSigstoreVerifier("", "", ""); v != nil {
		t.Error("expected nil verifier when nothing is configured")
	}

	dir := t.TempDir()
	archive := writeFile(t, dir, "keploy.tar.gz", "release archive")
	bundle := writeFile(t, dir, "keploy.sigstore.json", "not json")

	t.Run("issuer_required", func(t *testing.T) {
		v := NewSigstoreVerifier("https://github.com/keploy/.*", "", "")
		if err := v.Verify(context.Background(), archive, bundle); err == nil {
			t.Error("expected error without issuer")
		}
	})

	t.Run("cancelled_context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		v := NewSigstoreVerifier("https://github.com/keploy/.*", "https://token.actions.githubusercontent.com", "")
		if err := v.Verify(ctx, archive, bundle); err == nil {
			t.Error("expected error for cancelled context")
		}
	})

	t.Run("invalid_bundle", func(t *testing.T) {
		v := NewSigstoreVerifier("https://github.com/keploy/.*", "https://token.actions.githubusercontent.com", "")
		err := v.Verify(context.Background(), archive, bundle)
		if err == nil || !strings.Contains(err.Error(), "load bundle") {
			t.Errorf("expected bundle load error, got %v", err)
		}
	})
}

func TestVerificationMethodString(t *testing.T) {
	tests := []struct {
		method VerificationMethod
		want   string
	}{
		{VerificationNone, "None"},
		{VerificationGPG, "GPG"},
		{VerificationSHA256, "SHA256"},
		{VerificationSigstore, "Sigstore"},
		{VerificationMethod(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.method.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.method, got, tt.want)
		}
	}
}
