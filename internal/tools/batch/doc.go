// Package batch runs one operation over several templates and reports the
// per-template outcome as a single JSON document, so a partial failure is
// visible without failing the whole tool call.
package batch
