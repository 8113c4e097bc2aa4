// Package imessage is a transport that sends iMessage/SMS/RCS messages via
// macOS Messages.app.
//
// Data sources
//
//   - AppleScript (Messages.app): send operations.
//   - SQLite (~/Library/Messages/chat.db): bootstrap probe that the local
//     Messages account is set up and readable.
//
// Lifecycle
//
//   - Start requires macOS and an existing chat.db. A readable database
//     produces authenticated then ready. A database the process may not
//     read (missing Full Disk Access) produces auth_failure.
//   - Close produces disconnected.
//
// Canonical recipients "15551234567@c.us" are sent to the handle
// "+15551234567". Attachments are staged in the session's credential
// directory under outbox/ because Messages.app reads them after the send
// call returns.
//
// Operational notes
//
//   - Sending requires macOS Automation permission for the calling process to
//     control Messages.app (System Settings -> Privacy & Security -> Automation).
//   - SQLite access uses github.com/mattn/go-sqlite3 (CGO required).
package imessage
