// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import "encoding/binary"

// HeaderSize is the fixed length of the DTLS handshake fragment header:
// msg_type(1) || length(3) || message_seq(2) || fragment_offset(3) ||
// fragment_length(3).
const HeaderSize = 12

// Header is the 12-byte header prefixing every handshake fragment.
type Header struct {
	Type            Type
	Length          uint32 // 24-bit
	MessageSequence uint16
	FragmentOffset  uint32 // 24-bit
	FragmentLength  uint32 // 24-bit
}

// Marshal encodes the Header.
func (h *Header) Marshal() ([]byte, error) {
	out := make([]byte, HeaderSize)
	out[0] = byte(h.Type)
	putUint24(out[1:4], h.Length)
	binary.BigEndian.PutUint16(out[4:6], h.MessageSequence)
	putUint24(out[6:9], h.FragmentOffset)
	putUint24(out[9:12], h.FragmentLength)
	return out, nil
}

// Unmarshal populates the Header from encoded data.
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return errBufferTooSmall
	}
	h.Type = Type(data[0])
	h.Length = uint24(data[1:4])
	h.MessageSequence = binary.BigEndian.Uint16(data[4:6])
	h.FragmentOffset = uint24(data[6:9])
	h.FragmentLength = uint24(data[9:12])
	return nil
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
