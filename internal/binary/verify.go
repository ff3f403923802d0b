package binary

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// Verifier handles cryptographic verification of downloaded archives
type Verifier struct {
	keyringPath string
	sigstore    *SigstoreVerifier
}

// NewVerifier creates a new verifier. keyringPath is the armored (or
// binary) public keyring for GPG signatures; sigstore may be nil when no
// bundle verification is configured.
func NewVerifier(keyringPath string, sigstore *SigstoreVerifier) *Verifier {
	return &Verifier{
		keyringPath: keyringPath,
		sigstore:    sigstore,
	}
}

// Verify checks the archive against every verification file present in a.
// It returns the methods that passed, or an error at the first failure.
// An empty method list means nothing was configured.
func (v *Verifier) Verify(ctx context.Context, a *artifacts) ([]VerificationMethod, error) {
	var methods []VerificationMethod

	if a.bundle != "" {
		if v.sigstore == nil {
			return nil, fmt.Errorf("bundle downloaded but no certificate identity configured")
		}
		if err := v.sigstore.Verify(ctx, a.archive, a.bundle); err != nil {
			return nil, fmt.Errorf("sigstore verification: %w", err)
		}
		methods = append(methods, VerificationSigstore)
	}

	if a.signature != "" {
		if err := v.verifyGPG(a.archive, a.signature); err != nil {
			return nil, fmt.Errorf("GPG verification: %w", err)
		}
		methods = append(methods, VerificationGPG)
	}

	if a.checksums != "" {
		if err := verifySHA256(a.archive, a.checksums); err != nil {
			return nil, fmt.Errorf("SHA256 verification: %w", err)
		}
		methods = append(methods, VerificationSHA256)
	}

	return methods, nil
}

// verifyGPG verifies a file using a detached GPG signature
func (v *Verifier) verifyGPG(filePath, signaturePath string) error {
	if v.keyringPath == "" {
		return fmt.Errorf("no keyring configured")
	}

	keyring, err := loadKeyring(v.keyringPath)
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	signed, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer signed.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	// Try armored first, then binary signatures
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, signed, sig, nil)
	if err != nil {
		if _, seekErr := signed.Seek(0, io.SeekStart); seekErr != nil {
			return seekErr
		}
		if _, seekErr := sig.Seek(0, io.SeekStart); seekErr != nil {
			return seekErr
		}
		_, err = openpgp.CheckDetachedSignature(keyring, signed, sig, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	return nil
}

// loadKeyring loads a GPG keyring, armored or binary.
func loadKeyring(keyringPath string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		if _, seekErr := keyringFile.Seek(0, io.SeekStart); seekErr != nil {
			return nil, seekErr
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// verifySHA256 checks filePath against its entry in checksumPath.
func verifySHA256(filePath, checksumPath string) error {
	actual, err := calculateSHA256(filePath)
	if err != nil {
		return fmt.Errorf("calculate checksum: %w", err)
	}

	expected, err := findChecksum(checksumPath, filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("find checksum: %w", err)
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch: actual %s, expected %s", actual, expected)
	}

	return nil
}

// calculateSHA256 calculates the SHA256 checksum of a file
func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// findChecksum finds the checksum for a specific filename in a checksum file
// Format: "abc123def456  filename.tar.gz" (a leading '*' marks binary mode)
func findChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		name := strings.TrimPrefix(parts[1], "*")
		if name == filename || filepath.Base(name) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}
