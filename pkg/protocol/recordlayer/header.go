// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package recordlayer implements the DTLS record header, RFC 6347 Section 4.1.
//
// The encrypt/decrypt pipeline and sequence-number/epoch tracking that
// normally live alongside this header belong to the caller's own record
// layer; this package only frames and parses the header the handshake
// core needs to read content type and epoch off an incoming record and to
// stamp them on an outgoing one.
package recordlayer

import (
	"encoding/binary"

	"github.com/denissytenkov/scandium/pkg/protocol"
)

// HeaderSize is the fixed length of a DTLS record header in bytes:
// type(1) || version(2) || epoch(2) || sequence_number(6) || length(2).
const HeaderSize = 13

// Header is the header prefixing every DTLS record.
type Header struct {
	ContentType    protocol.ContentType
	Version        protocol.Version
	Epoch          uint16
	SequenceNumber uint64 // 48-bit on the wire
	ContentLength  uint16
}

// Marshal encodes the Header.
func (h *Header) Marshal() ([]byte, error) {
	out := make([]byte, HeaderSize)
	out[0] = byte(h.ContentType)
	out[1] = h.Version.Major
	out[2] = h.Version.Minor
	binary.BigEndian.PutUint16(out[3:5], h.Epoch)

	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, h.SequenceNumber)
	copy(out[5:11], seq[2:])

	binary.BigEndian.PutUint16(out[11:13], h.ContentLength)
	return out, nil
}

// Unmarshal populates the Header from encoded data.
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return errBufferTooSmall
	}
	h.ContentType = protocol.ContentType(data[0])
	h.Version = protocol.Version{Major: data[1], Minor: data[2]}
	h.Epoch = binary.BigEndian.Uint16(data[3:5])

	seq := make([]byte, 8)
	copy(seq[2:], data[5:11])
	h.SequenceNumber = binary.BigEndian.Uint64(seq)

	h.ContentLength = binary.BigEndian.Uint16(data[11:13])
	return nil
}
