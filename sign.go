// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
)

// signECDSA signs data with the server's long-term ECDSA key, for
// ServerKeyExchange. The only (hash, signature) pair this server
// negotiates is (SHA256, ECDSA); see pkg/crypto/signaturehash.
func signECDSA(key *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, key, digest[:])
}

// verifyECDSA checks an ECDSA signature over data using the peer's public
// key, used for CertificateVerify and nowhere else: the server never
// verifies its own ServerKeyExchange signature.
func verifyECDSA(key *ecdsa.PublicKey, data, signature []byte) bool {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(key, digest[:], signature)
}
