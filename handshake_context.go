// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"crypto/ecdsa"

	"github.com/denissytenkov/scandium/internal/transcript"
	"github.com/denissytenkov/scandium/pkg/crypto/ciphersuite"
	"github.com/denissytenkov/scandium/pkg/crypto/elliptic"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

// serverState is the explicit state enum spec.md Section 4.1 notes the
// source encodes implicitly via presence checks: "implementers may make
// it explicit."
type serverState int

const (
	stateExpectClientHelloNoCookie serverState = iota
	stateExpectClientHelloWithCookie
	stateExpectClientCertOrKX
	stateExpectCertificateVerifyOrCCS
	stateExpectChangeCipherSpec
	stateExpectClientFinished
	stateDone
)

// handshakeContext is the per-handshake transient state owned by a
// ServerHandshaker (spec.md Section 3 "HandshakeContext"). It is not
// released when the session becomes active: every field stays in place on
// the ServerHandshaker, and lastFlight is what answers a duplicate client
// Finished with an identical terminal flight.
type handshakeContext struct {
	state serverState

	runningDigest   *transcript.Hash
	transcriptBytes []byte

	// nextMessageSeq is this server's own outbound handshake message_seq
	// counter (advanced by appendHandshakeRecord and friends). It is a
	// separate sequence space from the client's: DTLS numbers each
	// direction's handshake messages independently (RFC 6347 Section 4.2.2).
	nextMessageSeq uint16
	// nextClientMessageSeq is the message_seq this server expects the
	// client's next fully-reassembled handshake message to carry, used to
	// hold out-of-order messages in queued until their turn.
	nextClientMessageSeq uint16
	fragments            *handshake.FragmentBuffer
	queued               map[uint16]queuedRecord

	cookie []byte

	clientHello           *handshake.MessageClientHello
	clientCertificate     *handshake.MessageCertificate
	clientKeyExchange     *handshake.MessageClientKeyExchange
	certificateVerify     *handshake.MessageCertificateVerify
	clientFinished        *handshake.MessageFinished
	clientCertSeqReceived bool

	keyExchangeAlgorithm ciphersuite.KeyExchangeAlgorithm
	ecdheCurve           elliptic.Curve
	ecdhePrivateKey      []byte
	clientPublicKey      *ecdsa.PublicKey

	hasServerCertTypeExt     bool
	hasClientCertTypeExt     bool
	negotiatedServerCertType extension.CertificateType
	negotiatedClientCertType extension.CertificateType

	lastFlight *Flight
}

type queuedRecord struct {
	msgType handshake.Type
	body    []byte
}

func newHandshakeContext() *handshakeContext {
	return &handshakeContext{
		state:     stateExpectClientHelloNoCookie,
		fragments: handshake.NewFragmentBuffer(),
		queued:    map[uint16]queuedRecord{},
	}
}

// absorb appends a handshake message's raw wire bytes (header + body) to
// both the running digest and the transcript byte buffer, in the order
// they appear on the wire (spec.md Section 3 invariant). HelloVerifyRequest
// and the cookieless ClientHello that triggered it are never passed here.
func (hc *handshakeContext) absorb(raw []byte) {
	hc.runningDigest.Write(raw)
	hc.transcriptBytes = append(hc.transcriptBytes, raw...)
}
