// Package binary installs and refreshes the Keploy recorder binary.
//
// # Update pipeline
//
// Manager.Update runs a single attempt of:
//
//  1. Download the release archive (and any checksum, signature or cosign
//     bundle files) into a private temporary directory.
//  2. Verify the archive before anything is extracted.
//  3. Extract only the recorder executable into a temporary file inside the
//     installation directory, mark it executable and smoke-test it with
//     --version.
//  4. Rename the temporary file over the installed binary.
//
// The rename is the only step that touches the installed path, so a failed
// or interrupted update leaves the previous binary in place.
//
// # Verification
//
// Every configured method must pass:
//   - cosign bundle (sigstore) when a bundle URL is configured
//   - GPG detached signature when a signature URL and keyring are configured
//   - SHA256 from a checksums file when a checksum URL is configured
//
// With none configured the archive is installed unverified and a warning is
// logged.
//
// # Concurrency
//
// Concurrent updates of the same installation path within a process are
// collapsed: later callers wait for the running update and share its result.
// Across processes a lock file in the installation directory rejects a
// second updater with outcome.KindBusy.
//
// # Container variant
//
// A Source with Container set skips all of the above and pulls the recorder
// image through the configured container runtime instead.
package binary
