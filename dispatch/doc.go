// Package dispatch sends messages through connected sessions.
//
// Exported API
//
//  1. Dispatcher.Send(sessionID, Request)
//     Send one text message or one attachment. When both are supplied the
//     attachment is sent and the text is ignored; Caption goes with the
//     attachment.
//  2. Dispatcher.SendBulk(sessionID, items, defaultDelay)
//     Send an ordered batch, one item at a time. Item failures are recorded
//     in the returned BatchSummary and never stop the batch.
//  3. NormalizeRecipient(to, suffix)
//     Reduce a phone representation to its digits and append the canonical
//     suffix: "+1 (555) 123-4567" becomes "15551234567@c.us".
//  4. Resolver.Resolve(source, mimeType)
//     Turn an attachment string into bytes: a local file path, then an
//     http(s) URL, then inline base64 (which needs an explicit type).
//
// Every send requires the session to exist and be connected. Errors are
// classified with the msgerr kinds: validation for malformed requests,
// connection for unusable sessions, transport for failed sends.
package dispatch
