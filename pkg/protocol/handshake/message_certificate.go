// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

// MessageCertificate carries the server's (or, optionally, the client's)
// certificate chain. When session.send_raw_public_key is set, exactly one
// entry is present and it is a SubjectPublicKeyInfo blob rather than an
// X.509 certificate (spec.md Section 4.3).
//
// https://tools.ietf.org/html/rfc5246#section-7.4.2
type MessageCertificate struct {
	Certificate [][]byte
}

// Type returns the Handshake Type.
func (m MessageCertificate) Type() Type {
	return TypeCertificate
}

// Marshal encodes the Handshake.
func (m *MessageCertificate) Marshal() ([]byte, error) {
	var certsBytes []byte
	for _, cert := range m.Certificate {
		entry := make([]byte, 3)
		putUint24(entry, uint32(len(cert)))
		certsBytes = append(certsBytes, entry...)
		certsBytes = append(certsBytes, cert...)
	}

	out := make([]byte, 3)
	putUint24(out, uint32(len(certsBytes)))
	return append(out, certsBytes...), nil
}

// Unmarshal populates the message from encoded data.
func (m *MessageCertificate) Unmarshal(data []byte) error {
	if len(data) < 3 {
		return errBufferTooSmall
	}
	declared := int(uint24(data[0:3]))
	if len(data) < 3+declared {
		return errBufferTooSmall
	}
	body := data[3 : 3+declared]

	m.Certificate = nil
	for len(body) > 0 {
		if len(body) < 3 {
			return errBufferTooSmall
		}
		certLen := int(uint24(body[0:3]))
		if len(body) < 3+certLen {
			return errBufferTooSmall
		}
		m.Certificate = append(m.Certificate, append([]byte{}, body[3:3+certLen]...))
		body = body[3+certLen:]
	}
	return nil
}
