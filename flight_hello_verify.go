// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

// buildHelloVerifyRequest answers a cookie-less (or bad-cookie) ClientHello
// with a fresh HelloVerifyRequest (spec.md Section 4.1, 4.6). Per the
// transition table, this flight is never folded into the transcript.
func (hs *ServerHandshaker) buildHelloVerifyRequest(cookie []byte) (*Flight, error) {
	msg := &handshake.MessageHelloVerifyRequest{
		Version: protocol.Version1_2,
		Cookie:  cookie,
	}
	body, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	hdr := handshake.Header{
		Type:            handshake.TypeHelloVerifyRequest,
		Length:          uint32(len(body)),
		MessageSequence: hs.hc.nextMessageSeq,
		FragmentOffset:  0,
		FragmentLength:  uint32(len(body)),
	}
	hs.hc.nextMessageSeq++

	raw, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}
	raw = append(raw, body...)

	return &Flight{
		Records: []Record{{
			ContentType: protocol.ContentTypeHandshake,
			Epoch:       hs.session.ReadEpoch,
			Fragment:    raw,
		}},
		Retransmittable: true,
	}, nil
}
