package binary

import (
	"fmt"
	"time"
)

// BinaryName is the file name of the installed recorder executable.
const BinaryName = "keploy"

// Source describes where an update comes from: a release archive URL with
// optional verification material, or a container image.
type Source struct {
	URL          string
	ChecksumURL  string
	SignatureURL string
	BundleURL    string

	// Container selects the container variant; Image is then required.
	Container bool
	Image     string
}

// String returns a short description for logs and messages.
func (s Source) String() string {
	if s.Container {
		return fmt.Sprintf("image %s", s.Image)
	}
	return s.URL
}

// VerificationMethod indicates how an archive was verified.
type VerificationMethod int

const (
	// VerificationNone indicates no verification was configured
	VerificationNone VerificationMethod = iota
	// VerificationGPG indicates GPG signature verification was used
	VerificationGPG
	// VerificationSHA256 indicates SHA256 checksum verification was used
	VerificationSHA256
	// VerificationSigstore indicates cosign bundle verification was used
	VerificationSigstore
)

// String returns the string representation of the verification method
func (v VerificationMethod) String() string {
	switch v {
	case VerificationGPG:
		return "GPG"
	case VerificationSHA256:
		return "SHA256"
	case VerificationSigstore:
		return "Sigstore"
	case VerificationNone:
		return "None"
	default:
		return "Unknown"
	}
}

// InstallResult describes a completed archive update.
type InstallResult struct {
	Path     string
	Size     int64
	Verified []VerificationMethod
	Duration time.Duration
}

// artifacts are the downloaded files for one update.
type artifacts struct {
	archive   string
	checksums string
	signature string
	bundle    string
}
