// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import (
	"encoding/binary"

	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
)

// MessageClientHello is the first message a client sends, and the only
// message this server accepts before a cookie round trip has completed
// (spec.md Section 4.1).
//
// https://tools.ietf.org/html/rfc6347#section-4.2.2
type MessageClientHello struct {
	Version            protocol.Version
	Random             Random
	SessionID          []byte
	Cookie             []byte
	CipherSuiteIDs     []uint16
	CompressionMethods []protocol.CompressionMethodID
	Extensions         []extension.Extension
}

// Type returns the Handshake Type.
func (m MessageClientHello) Type() Type {
	return TypeClientHello
}

// Marshal encodes the Handshake.
func (m *MessageClientHello) Marshal() ([]byte, error) {
	out := make([]byte, 2+RandomLength)
	out[0] = m.Version.Major
	out[1] = m.Version.Minor

	rand := m.Random.MarshalFixed()
	copy(out[2:], rand[:])

	out = append(out, byte(len(m.SessionID)))
	out = append(out, m.SessionID...)

	out = append(out, byte(len(m.Cookie)))
	out = append(out, m.Cookie...)

	cipherSuiteBytes := make([]byte, 2+2*len(m.CipherSuiteIDs))
	binary.BigEndian.PutUint16(cipherSuiteBytes, uint16(2*len(m.CipherSuiteIDs)))
	for i, id := range m.CipherSuiteIDs {
		binary.BigEndian.PutUint16(cipherSuiteBytes[2+2*i:], id)
	}
	out = append(out, cipherSuiteBytes...)

	compressionBytes := make([]byte, 1+len(m.CompressionMethods))
	compressionBytes[0] = byte(len(m.CompressionMethods))
	for i, id := range m.CompressionMethods {
		compressionBytes[1+i] = byte(id)
	}
	out = append(out, compressionBytes...)

	extensions, err := extension.Marshal(m.Extensions)
	if err != nil {
		return nil, err
	}
	return append(out, extensions...), nil
}

// Unmarshal populates the message from encoded data.
func (m *MessageClientHello) Unmarshal(data []byte) error {
	if len(data) < 2+RandomLength+1 {
		return errBufferTooSmall
	}
	m.Version = protocol.Version{Major: data[0], Minor: data[1]}

	var random [RandomLength]byte
	copy(random[:], data[2:])
	m.Random.UnmarshalFixed(random)

	offset := 2 + RandomLength
	n := int(data[offset])
	offset++
	if len(data) < offset+n {
		return errBufferTooSmall
	}
	m.SessionID = append([]byte{}, data[offset:offset+n]...)
	offset += n

	if len(data) <= offset {
		return errBufferTooSmall
	}
	n = int(data[offset])
	offset++
	if len(data) < offset+n {
		return errBufferTooSmall
	}
	m.Cookie = append([]byte{}, data[offset:offset+n]...)
	offset += n

	if len(data) < offset+2 {
		return errBufferTooSmall
	}
	suitesLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+suitesLen || suitesLen%2 != 0 {
		return errBufferTooSmall
	}
	m.CipherSuiteIDs = make([]uint16, suitesLen/2)
	for i := range m.CipherSuiteIDs {
		m.CipherSuiteIDs[i] = binary.BigEndian.Uint16(data[offset+2*i:])
	}
	offset += suitesLen

	if len(data) <= offset {
		return errBufferTooSmall
	}
	compressionLen := int(data[offset])
	offset++
	if len(data) < offset+compressionLen {
		return errBufferTooSmall
	}
	m.CompressionMethods = make([]protocol.CompressionMethodID, compressionLen)
	for i := range m.CompressionMethods {
		m.CompressionMethods[i] = protocol.CompressionMethodID(data[offset+i])
	}
	offset += compressionLen

	if len(data) <= offset {
		m.Extensions = []extension.Extension{}
		return nil
	}
	extensions, err := extension.Unmarshal(data[offset:])
	if err != nil {
		return err
	}
	m.Extensions = extensions
	return nil
}
