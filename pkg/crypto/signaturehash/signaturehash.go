// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package signaturehash names the single (hash, signature) pair this
// server supports: SHA-256 with ECDSA, the only combination spec.md
// Section 4.3/4.4 names for ServerKeyExchange, CertificateRequest, and
// CertificateVerify.
package signaturehash

// Hash is the TLS HashAlgorithm registry value.
type Hash uint8

// Sha256 is the only hash algorithm this server negotiates.
const Sha256 Hash = 4

// Signature is the TLS SignatureAlgorithm registry value.
type Signature uint8

// ECDSA is the only signature algorithm this server negotiates.
const ECDSA Signature = 3

// Algorithm pairs a Hash and Signature, as carried on the wire in
// CertificateRequest and CertificateVerify.
type Algorithm struct {
	Hash      Hash
	Signature Signature
}

// Default is the (SHA256, ECDSA) pair this server always offers and
// requires.
var Default = Algorithm{Hash: Sha256, Signature: ECDSA}
