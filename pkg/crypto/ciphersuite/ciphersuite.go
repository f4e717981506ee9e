// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package ciphersuite describes the cipher suites this server negotiates
// (spec.md Section 4.2) and the key material each one needs. It does not
// implement record-layer AEAD sealing/opening: that boundary belongs to
// the transport this handshake core is embedded in, not to the handshake
// itself (spec.md Section 1).
package ciphersuite

import (
	"crypto/sha256"
	"hash"

	"github.com/denissytenkov/scandium/pkg/crypto/signaturehash"
)

// ID is the two-byte cipher suite identifier as sent on the wire.
type ID uint16

// Cipher suites this server understands. Values match their IANA registry
// assignments.
const (
	TLS_PSK_WITH_AES_128_CCM_8         ID = 0xc0a8 //nolint:stylecheck,revive
	TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8 ID = 0xc0ae //nolint:stylecheck,revive
	SSL_NULL_WITH_NULL_NULL            ID = 0x0000 //nolint:stylecheck,revive
)

// KeyExchangeAlgorithm distinguishes how a suite derives its premaster
// secret (spec.md Section 4.2).
type KeyExchangeAlgorithm int

const (
	KeyExchangeNone KeyExchangeAlgorithm = iota
	KeyExchangePSK
	KeyExchangeECDHE
)

// CipherSuite is the static, negotiation-time description of one cipher
// suite. It never touches key material; GenerateEncryptionKeys in
// pkg/crypto/prf does that once premaster and randoms are known.
type CipherSuite struct {
	ID                   ID
	KeyExchangeAlgorithm KeyExchangeAlgorithm
	CertificateRequired  bool
	SignatureAlgorithm   signaturehash.Algorithm
	KeyLength            int
	IVLength             int
}

// HashFunc is the PRF/transcript hash for every suite this server
// negotiates: all three use SHA-256 (spec.md Section 4.2, Section 5).
func HashFunc() func() hash.Hash {
	return sha256.New
}

// suites is the server's supported set, keyed by ID. It carries no order;
// ServerSupported gives the fixed preference order.
var suites = map[ID]*CipherSuite{
	TLS_PSK_WITH_AES_128_CCM_8: {
		ID:                   TLS_PSK_WITH_AES_128_CCM_8,
		KeyExchangeAlgorithm: KeyExchangePSK,
		CertificateRequired:  false,
		KeyLength:            16,
		IVLength:             4,
	},
	TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8: {
		ID:                   TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8,
		KeyExchangeAlgorithm: KeyExchangeECDHE,
		CertificateRequired:  true,
		SignatureAlgorithm:   signaturehash.Default,
		KeyLength:            16,
		IVLength:             4,
	},
	SSL_NULL_WITH_NULL_NULL: {
		ID:                   SSL_NULL_WITH_NULL_NULL,
		KeyExchangeAlgorithm: KeyExchangeNone,
		CertificateRequired:  false,
	},
}

// ByID looks up a supported suite, reporting ok=false for anything this
// server does not implement. The lookup succeeds for
// SSL_NULL_WITH_NULL_NULL: negotiation excludes it by name, not by making
// it unknown (spec.md Section 4.2 item 3).
func ByID(id ID) (*CipherSuite, bool) {
	s, ok := suites[id]
	return s, ok
}

// ServerSupported returns the suites this server advertises, in the fixed
// preference order negotiation walks.
func ServerSupported() []*CipherSuite {
	return []*CipherSuite{
		suites[TLS_PSK_WITH_AES_128_CCM_8],
		suites[TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8],
		suites[SSL_NULL_WITH_NULL_NULL],
	}
}

// Negotiate walks the client's offered IDs in the order given and returns
// the first one both supported by this server and not
// SSL_NULL_WITH_NULL_NULL (spec.md Section 4.1).
func Negotiate(offered []ID) (*CipherSuite, bool) {
	for _, id := range offered {
		if id == SSL_NULL_WITH_NULL_NULL {
			continue
		}
		if s, ok := suites[id]; ok {
			return s, true
		}
	}
	return nil, false
}
