// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import (
	"encoding/binary"

	"github.com/denissytenkov/scandium/pkg/crypto/elliptic"
	"github.com/denissytenkov/scandium/pkg/crypto/signaturehash"
)

// ecNamedCurve is the ECParameters.curve_type value for a named curve
// (RFC 4492 Section 5.4): this server never sends explicit curve
// parameters, only named ones.
const ecNamedCurve = 3

// MessageServerKeyExchange carries the server's ephemeral EC public point
// and a signature over the two randoms and the point, for
// TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8. This server never emits a PSK
// identity hint, so the PSK suite never produces a ServerKeyExchange at
// all.
//
// https://tools.ietf.org/html/rfc4492#section-5.4
type MessageServerKeyExchange struct {
	NamedCurve         elliptic.CurveType
	PublicKey          []byte
	HashAlgorithm      signaturehash.Hash
	SignatureAlgorithm signaturehash.Signature
	Signature          []byte
}

// Type returns the Handshake Type.
func (m MessageServerKeyExchange) Type() Type {
	return TypeServerKeyExchange
}

// Marshal encodes the Handshake.
func (m *MessageServerKeyExchange) Marshal() ([]byte, error) {
	out := []byte{ecNamedCurve}

	curveID := make([]byte, 2)
	binary.BigEndian.PutUint16(curveID, uint16(m.NamedCurve))
	out = append(out, curveID...)

	out = append(out, byte(len(m.PublicKey)))
	out = append(out, m.PublicKey...)

	out = append(out, byte(m.HashAlgorithm), byte(m.SignatureAlgorithm))

	sigLen := make([]byte, 2)
	binary.BigEndian.PutUint16(sigLen, uint16(len(m.Signature)))
	out = append(out, sigLen...)
	out = append(out, m.Signature...)

	return out, nil
}

// Unmarshal populates the message from encoded data.
func (m *MessageServerKeyExchange) Unmarshal(data []byte) error {
	if len(data) < 4 || data[0] != ecNamedCurve {
		return errBufferTooSmall
	}
	m.NamedCurve = elliptic.CurveType(binary.BigEndian.Uint16(data[1:3]))

	offset := 3
	n := int(data[offset])
	offset++
	if len(data) < offset+n {
		return errBufferTooSmall
	}
	m.PublicKey = append([]byte{}, data[offset:offset+n]...)
	offset += n

	if len(data) < offset+4 {
		return errBufferTooSmall
	}
	m.HashAlgorithm = signaturehash.Hash(data[offset])
	m.SignatureAlgorithm = signaturehash.Signature(data[offset+1])
	offset += 2

	sigLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+sigLen {
		return errBufferTooSmall
	}
	m.Signature = append([]byte{}, data[offset:offset+sigLen]...)
	return nil
}

// SignedServerKeyExchangeParams returns the byte sequence this message's Signature is
// computed over: client_random || server_random || curve_params ||
// server_public_point.
func SignedServerKeyExchangeParams(clientRandom, serverRandom [RandomLength]byte, curve elliptic.CurveType, publicKey []byte) []byte {
	out := append([]byte{}, clientRandom[:]...)
	out = append(out, serverRandom[:]...)
	out = append(out, ecNamedCurve)

	curveID := make([]byte, 2)
	binary.BigEndian.PutUint16(curveID, uint16(curve))
	out = append(out, curveID...)

	out = append(out, byte(len(publicKey)))
	return append(out, publicKey...)
}
