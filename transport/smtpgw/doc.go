// Package smtpgw is a transport that delivers messages through an
// email-to-SMS gateway.
//
// A canonical recipient "15551234567@c.us" is sent as mail to
// "15551234567@<GatewayDomain>". Attachments travel as MIME parts.
//
// Lifecycle
//
//   - Start dials the SMTP server and authenticates with SASL PLAIN.
//     Accepted credentials produce authenticated then ready. Rejected
//     credentials produce auth_failure. A server that cannot be reached is a
//     bootstrap error.
//   - Close produces disconnected and ends the event stream.
//
// Each send opens its own SMTP connection, as SMTP servers drop idle
// sessions. When IMAPAddress and SentMailbox are set, a copy of every sent
// message is appended to that mailbox over IMAP.
//
// Live tests run only with SMTPGW_LIVE_TEST=1 and the SMTPGW_* variables
// documented in smtpgw_live_test.go.
package smtpgw
