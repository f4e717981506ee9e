// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"errors"
	"fmt"

	"github.com/denissytenkov/scandium/pkg/protocol/alert"
)

// Sentinel errors for failures that never reach the peer as an alert:
// caller misuse, transient parsing faults the spec.md Section 7 error
// model says to drop silently, and internal bookkeeping violations. The
// exception is errUnexpectedRecordType, which ProcessRecord carries as the
// cause of an UNEXPECTED_MESSAGE HandshakeError.
var (
	errNilConfig            = errors.New("scandium: config is nil")
	errNilRecordLayer       = errors.New("scandium: record layer is nil")
	errNoCertificates       = errors.New("scandium: ECDHE-ECDSA suite requires at least one certificate")
	errUnexpectedRecordType = errors.New("scandium: unexpected record content type")
)

// HandshakeError is returned by ServerHandshaker.ProcessRecord when the
// peer's behavior or a cryptographic check requires tearing the handshake
// down. Alert is always non-nil and is what the caller must deliver to the
// peer (spec.md Section 7: "the state machine returns either an outbound
// flight or raises a fatal-handshake error carrying the alert to emit").
type HandshakeError struct {
	Alert *alert.Alert
	Err   error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scandium: %s: %v", e.Alert, e.Err)
	}
	return fmt.Sprintf("scandium: %s", e.Alert)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func fatal(desc alert.Description, err error) *HandshakeError {
	return &HandshakeError{
		Alert: &alert.Alert{Level: alert.Fatal, Description: desc},
		Err:   err,
	}
}
