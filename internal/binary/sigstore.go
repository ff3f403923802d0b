package binary

import (
	"context"
	"fmt"
	"os"

	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"
)

// SigstoreVerifier checks cosign bundles against a certificate identity.
type SigstoreVerifier struct {
	identity    string // SAN regular expression
	issuer      string // OIDC issuer
	trustedRoot string // trusted_root.json path; empty fetches the public-good root via TUF
}

// NewSigstoreVerifier returns nil when no identity is configured, which
// disables bundle verification.
func NewSigstoreVerifier(identity, issuer, trustedRoot string) *SigstoreVerifier {
	if identity == "" && issuer == "" {
		return nil
	}
	return &SigstoreVerifier{
		identity:    identity,
		issuer:      issuer,
		trustedRoot: trustedRoot,
	}
}

// Verify checks that bundlePath is a valid cosign bundle for archivePath
// signed by the configured identity.
func (s *SigstoreVerifier) Verify(ctx context.Context, archivePath, bundlePath string) error {
	if s.identity == "" || s.issuer == "" {
		return fmt.Errorf("certificate identity and issuer are both required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := bundle.LoadJSONFromPath(bundlePath)
	if err != nil {
		return fmt.Errorf("load bundle: %w", err)
	}

	trusted, err := s.loadTrustedRoot()
	if err != nil {
		return fmt.Errorf("load trusted root: %w", err)
	}

	verifier, err := verify.NewVerifier(trusted,
		verify.WithSignedCertificateTimestamps(1),
		verify.WithTransparencyLog(1),
		verify.WithObserverTimestamps(1),
	)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	certID, err := verify.NewShortCertificateIdentity(s.issuer, "", "", s.identity)
	if err != nil {
		return fmt.Errorf("certificate identity: %w", err)
	}

	artifact, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer artifact.Close()

	if _, err := verifier.Verify(b, verify.NewPolicy(
		verify.WithArtifact(artifact),
		verify.WithCertificateIdentity(certID),
	)); err != nil {
		return fmt.Errorf("verify bundle: %w", err)
	}

	return nil
}

func (s *SigstoreVerifier) loadTrustedRoot() (root.TrustedMaterial, error) {
	if s.trustedRoot != "" {
		return root.NewTrustedRootFromPath(s.trustedRoot)
	}
	return root.FetchTrustedRoot()
}
