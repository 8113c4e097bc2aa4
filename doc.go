// Package msgsession is a lightweight index for the subpackages in this module.
//
// This root package is documentation-only. Import specific subpackages to use
// concrete helpers.
//
// Available subpackages:
//   - github.com/spachava753/msgsession/session
//     Session registry, connection lifecycle and the bounded connection wait.
//   - github.com/spachava753/msgsession/dispatch
//     Single and bulk sends with recipient normalization and attachment resolution.
//   - github.com/spachava753/msgsession/runner
//     One run: authorization, action, QR publishing and JSON output records.
//   - github.com/spachava753/msgsession/transport
//     The transport capability, with smtpgw (email-to-SMS over SMTP) and
//     imessage (macOS Messages) implementations.
//   - github.com/spachava753/msgsession/credentials, blobstore, config, logging, msgerr
//     Supporting stores, configuration and the error taxonomy.
//
// Discovery workflow for agents:
//   - Run: go doc github.com/spachava753/msgsession
//   - Then drill in with:
//     go doc github.com/spachava753/msgsession/session
//     go doc github.com/spachava753/msgsession/dispatch
//     go doc github.com/spachava753/msgsession/runner
package msgsession
