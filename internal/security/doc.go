// Package security provides log and audit redaction, rate limiting,
// parameter payload validation, and subprocess environment sanitization
// for the tool services.
package security
