// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import "github.com/denissytenkov/scandium/pkg/protocol"

// Record is one outbound wire unit the record layer must transmit. It is
// pre-fragmented and pre-framed: the record layer's only remaining job is
// sequencing, encryption, and datagram packing.
type Record struct {
	ContentType protocol.ContentType
	Epoch       uint16
	Fragment    []byte
}

// Flight is an ordered group of outbound records produced by one state
// machine advance. Retransmittable reports whether a caller's
// retransmission timer should resend this flight on timeout; the terminal
// flight answers false (it is instead re-emitted, verbatim, only in direct
// response to a duplicate client Finished).
type Flight struct {
	Records         []Record
	Retransmittable bool
}

// RecordLayer is the set of operations ServerHandshaker needs from its
// caller. The handshake core never touches a socket, a cipher, or a
// sequence number directly; it only commands epoch transitions and hands
// the caller already-framed bytes to encrypt and send.
type RecordLayer interface {
	// InstallReadState is called when a valid ChangeCipherSpec is
	// processed, immediately before read_epoch increments.
	InstallReadState(session *Session) error
	// InstallWriteState is called while assembling the terminal flight,
	// immediately before write_epoch increments.
	InstallWriteState(session *Session) error
}
