// Package validation binds request payloads and turns validator failures
// into field-level errors.
package validation
