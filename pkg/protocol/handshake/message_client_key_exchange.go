// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

// MessageClientKeyExchange carries either a PSK identity or an ephemeral
// EC public key, depending on the negotiated key exchange algorithm
// (spec.md Section 4.2). Its wire shape cannot be told apart from the
// bytes alone, so unlike the other messages in this package it is not
// decoded through the generic Message.Unmarshal: the state machine already
// knows the negotiated algorithm by the time it sees this message and
// calls UnmarshalWithAlgorithm directly.
//
// https://tools.ietf.org/html/rfc4279#section-2 (PSK)
// https://tools.ietf.org/html/rfc4492#section-5.7 (ECDHE)
type MessageClientKeyExchange struct {
	IdentityHint []byte // PSK
	PublicKey    []byte // EC_DIFFIE_HELLMAN
}

// Type returns the Handshake Type.
func (m MessageClientKeyExchange) Type() Type {
	return TypeClientKeyExchange
}

// Marshal encodes the Handshake.
func (m *MessageClientKeyExchange) Marshal() ([]byte, error) {
	switch {
	case m.IdentityHint != nil && m.PublicKey != nil:
		return nil, errAmbiguousClientKeyExchange
	case m.IdentityHint != nil:
		return append([]byte{byte(len(m.IdentityHint))}, m.IdentityHint...), nil
	case m.PublicKey != nil:
		return append([]byte{byte(len(m.PublicKey))}, m.PublicKey...), nil
	default:
		return nil, errAmbiguousClientKeyExchange
	}
}

// Unmarshal exists to satisfy the Message interface; callers MUST use
// UnmarshalWithAlgorithm instead, since this message's shape is ambiguous
// without knowing the negotiated key exchange algorithm.
func (m *MessageClientKeyExchange) Unmarshal(data []byte) error {
	return errAmbiguousClientKeyExchange
}

// KeyExchangeAlgorithm distinguishes how to parse a ClientKeyExchange body.
type KeyExchangeAlgorithm int

// Key exchange algorithms this server negotiates (spec.md Section 4.2).
const (
	KeyExchangePSK KeyExchangeAlgorithm = iota
	KeyExchangeECDHE
	KeyExchangeNone
)

// UnmarshalWithAlgorithm decodes the body under the negotiated algorithm.
func (m *MessageClientKeyExchange) UnmarshalWithAlgorithm(data []byte, alg KeyExchangeAlgorithm) error {
	if len(data) < 1 {
		return errBufferTooSmall
	}
	n := int(data[0])
	if len(data) < 1+n {
		return errBufferTooSmall
	}
	switch alg {
	case KeyExchangePSK:
		m.IdentityHint = append([]byte{}, data[1:1+n]...)
	case KeyExchangeECDHE:
		m.PublicKey = append([]byte{}, data[1:1+n]...)
	case KeyExchangeNone:
		// NULL key exchange still frames an (empty) opaque value.
	default:
		return errUnknownKeyExchangeAlgorithm
	}
	return nil
}
