// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import "github.com/denissytenkov/scandium/pkg/protocol"

// MessageHelloVerifyRequest is the server's stateless DoS-mitigation reply
// to a cookie-less ClientHello.
//
// https://tools.ietf.org/html/rfc6347#section-4.2.1
type MessageHelloVerifyRequest struct {
	Version protocol.Version
	Cookie  []byte
}

// Type returns the Handshake Type.
func (m MessageHelloVerifyRequest) Type() Type {
	return TypeHelloVerifyRequest
}

// Marshal encodes the Handshake.
func (m *MessageHelloVerifyRequest) Marshal() ([]byte, error) {
	out := make([]byte, 2, 2+1+len(m.Cookie))
	out[0] = m.Version.Major
	out[1] = m.Version.Minor
	out = append(out, byte(len(m.Cookie)))
	out = append(out, m.Cookie...)
	return out, nil
}

// Unmarshal populates the message from encoded data.
func (m *MessageHelloVerifyRequest) Unmarshal(data []byte) error {
	if len(data) < 3 {
		return errBufferTooSmall
	}
	m.Version = protocol.Version{Major: data[0], Minor: data[1]}
	n := int(data[2])
	if len(data) < 3+n {
		return errBufferTooSmall
	}
	m.Cookie = append([]byte{}, data[3:3+n]...)
	return nil
}
