// Package commands defines the msgsession CLI and wires dependencies for subcommands.
//
// Commands
//
//   - connect    Bring a session up and report its status, publishing a QR code when one is pending
//   - send       Send one text or attachment through a connected session
//   - send-bulk  Send a list of messages read from a JSON file, continuing past failures
//   - run        Execute a JSON input document (apiKey, action, sessionId, ...)
//   - artifact   List published artifacts or export one, such as the QR_CODE PNG
//
// # Implementation
//
// The root command loads the TOML configuration, builds the logger, the
// credential store, the transport factory, the session registry and the blob
// store before any subcommand runs. Each invocation shuts its sessions down
// on exit so no transport outlives the process.
package commands
