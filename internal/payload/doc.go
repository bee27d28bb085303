// Package payload downloads, verifies, and installs launcher content.
//
// # Integrity Model
//
// Content is never installed without an explicit integrity decision:
//   - When the manifest publishes a SHA-256 digest, the downloaded payload
//     must match it or it is discarded
//   - When no digest is published, the payload is installed only if the
//     unverified policy is enabled, and the result is marked unverified
//   - When a keyring is configured, the manifest itself must carry a valid
//     detached OpenPGP signature
//
// # Installation Model
//
// Archives are extracted into a staging directory next to the install target
// and swapped in only after extraction succeeds, so a corrupt archive leaves
// the previous installation untouched. Single files are renamed into place
// from a download in the same directory.
//
// # Architecture
//
// The package is organized into several components:
//   - Fetcher: HTTP manifest and payload retrieval with retry and progress
//   - Verifier: SHA-256 digests and OpenPGP manifest signatures
//   - Installer: staged archive extraction (zip, tar.gz) and file replace
//   - Manifest: the remote version descriptor
package payload
