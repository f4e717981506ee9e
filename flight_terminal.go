// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"github.com/denissytenkov/scandium/pkg/crypto/ciphersuite"
	"github.com/denissytenkov/scandium/pkg/crypto/prf"
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

// buildTerminalFlight assembles the two-record terminal flight (spec.md
// Section 4.5): a ChangeCipherSpec followed by the server's Finished. The
// caller has already verified the client's Finished against the
// pre-client-Finished transcript; this only needs to absorb the client's
// Finished bytes (already done by the caller) and sign the resulting
// transcript as its own verify_data.
func (hs *ServerHandshaker) buildTerminalFlight() (*Flight, error) {
	ccs := Record{
		ContentType: protocol.ContentTypeChangeCipherSpec,
		Epoch:       hs.session.WriteEpoch,
		Fragment:    []byte{0x01},
	}

	if err := hs.recordLayer.InstallWriteState(hs.session); err != nil {
		return nil, err
	}
	hs.session.WriteEpoch++

	transcriptDigest, err := hs.hc.runningDigest.Sum()
	if err != nil {
		return nil, err
	}
	verifyData, err := prf.VerifyDataServerFromDigest(hs.session.MasterSecret, transcriptDigest, ciphersuite.HashFunc())
	if err != nil {
		return nil, err
	}

	finishedMsg := &handshake.MessageFinished{VerifyData: verifyData}
	h := handshake.Handshake{
		Header:  handshake.Header{MessageSequence: hs.hc.nextMessageSeq},
		Message: finishedMsg,
	}
	raw, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	hs.hc.nextMessageSeq++
	hs.hc.absorb(raw)
	hs.handshakeLog.ServerFinished = finishedMsg.MakeLog()

	finished := Record{
		ContentType: protocol.ContentTypeHandshake,
		Epoch:       hs.session.WriteEpoch,
		Fragment:    raw,
	}

	flight := &Flight{Records: []Record{ccs, finished}, Retransmittable: false}
	hs.hc.lastFlight = flight
	hs.session.Active = true
	return flight, nil
}
