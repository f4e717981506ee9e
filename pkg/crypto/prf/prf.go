// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package prf implements the TLS 1.2 pseudorandom function (RFC 5246
// Section 5) and the premaster/master-secret/key-block/verify-data
// derivations spec.md Section 4.2 and Section 4.5 build on top of it.
package prf

import (
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"hash"

	"github.com/denissytenkov/scandium/pkg/crypto/elliptic"
)

var errInvalidHashLength = errors.New("prf: requested length must be positive")

const masterSecretLength = 48

// pHash implements P_hash(secret, seed) from RFC 5246 Section 5, expanded
// to the requested output length.
func pHash(secret, seed []byte, requestedLength int, hashFunc func() hash.Hash) []byte {
	h := hmac.New(hashFunc, secret)
	h.Write(seed)
	aCur := h.Sum(nil)

	out := make([]byte, 0, requestedLength)
	for len(out) < requestedLength {
		h := hmac.New(hashFunc, secret)
		h.Write(aCur)
		h.Write(seed)
		out = append(out, h.Sum(nil)...)

		h = hmac.New(hashFunc, secret)
		h.Write(aCur)
		aCur = h.Sum(nil)
	}
	return out[:requestedLength]
}

// prf computes PRF(secret, label, seed, requestedLength) per RFC 5246
// Section 5 (the TLS 1.2 PRF folds the MD5/SHA-1 split of TLS 1.1 into a
// single HMAC-SHA256 application; only SHA-256 is supported here).
func prf(secret []byte, label string, seed []byte, requestedLength int, hashFunc func() hash.Hash) []byte {
	labeledSeed := append([]byte(label), seed...)
	return pHash(secret, labeledSeed, requestedLength, hashFunc)
}

// PSKPreMasterSecret builds the premaster secret for PSK key exchange per
// RFC 4279 Section 2: uint16(len(psk)) || zeros(len(psk)) || uint16(len(psk)) || psk.
func PSKPreMasterSecret(psk []byte) []byte {
	pskLength := make([]byte, 2)
	binary.BigEndian.PutUint16(pskLength, uint16(len(psk)))

	out := make([]byte, 0, 4+2*len(psk))
	out = append(out, pskLength...)
	out = append(out, make([]byte, len(psk))...)
	out = append(out, pskLength...)
	out = append(out, psk...)
	return out
}

// PreMasterSecret derives the ECDHE premaster secret: the shared secret's
// X coordinate, encoded per the curve's field size with leading zeros
// preserved (handled by the Curve implementation itself).
func PreMasterSecret(publicKey, privateKey []byte, curve elliptic.Curve) ([]byte, error) {
	return curve.SharedSecret(publicKey, privateKey)
}

// MasterSecret derives the 48-byte master secret from the premaster
// secret and the client/server randoms (RFC 5246 Section 8.1).
func MasterSecret(preMasterSecret, clientRandom, serverRandom []byte, hashFunc func() hash.Hash) ([]byte, error) {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf(preMasterSecret, "master secret", seed, masterSecretLength, hashFunc), nil
}

// EncryptionKeys is the key block the record layer installs as its read
// and write state (RFC 5246 Section 6.3). MAC keys are empty for the AEAD
// suites this server negotiates, matching the test vectors derived from
// sha256.New with macLen=0.
type EncryptionKeys struct {
	MasterSecret   []byte
	ClientMACKey   []byte
	ServerMACKey   []byte
	ClientWriteKey []byte
	ServerWriteKey []byte
	ClientWriteIV  []byte
	ServerWriteIV  []byte
}

// GenerateEncryptionKeys derives the key block with label "key expansion"
// and seed server_random || client_random, then slices it into the
// client/server MAC, write-key, and write-IV segments per RFC 5246
// Section 6.3. The record layer (out of scope here) consumes this block.
func GenerateEncryptionKeys(masterSecret, clientRandom, serverRandom []byte, macLen, keyLen, ivLen int, hashFunc func() hash.Hash) (*EncryptionKeys, error) {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	requestedLength := (macLen * 2) + (keyLen * 2) + (ivLen * 2)
	keyBlock := prf(masterSecret, "key expansion", seed, requestedLength, hashFunc)

	offset := 0
	next := func(n int) []byte {
		v := keyBlock[offset : offset+n]
		offset += n
		return v
	}

	clientMACKey := next(macLen)
	serverMACKey := next(macLen)
	clientWriteKey := next(keyLen)
	serverWriteKey := next(keyLen)
	clientWriteIV := next(ivLen)
	serverWriteIV := next(ivLen)

	return &EncryptionKeys{
		MasterSecret:   masterSecret,
		ClientMACKey:   clientMACKey,
		ServerMACKey:   serverMACKey,
		ClientWriteKey: clientWriteKey,
		ServerWriteKey: serverWriteKey,
		ClientWriteIV:  clientWriteIV,
		ServerWriteIV:  serverWriteIV,
	}, nil
}

// verifyDataLength is the fixed length of a Finished message's verify_data
// for the SHA-256-based PRF (RFC 5246 Section 7.4.9).
const verifyDataLength = 12

// VerifyDataClient computes the verify_data a client's Finished message
// must carry: PRF(master_secret, "client finished", SHA256(handshakeBodies), 12).
func VerifyDataClient(masterSecret, handshakeBodies []byte, hashFunc func() hash.Hash) ([]byte, error) {
	return verifyData(masterSecret, "client finished", handshakeBodies, hashFunc)
}

// VerifyDataServer computes the verify_data this server's own Finished
// message carries: PRF(master_secret, "server finished", SHA256(transcript_with_client_finished), 12).
func VerifyDataServer(masterSecret, handshakeBodies []byte, hashFunc func() hash.Hash) ([]byte, error) {
	return verifyData(masterSecret, "server finished", handshakeBodies, hashFunc)
}

func verifyData(masterSecret []byte, label string, handshakeBodies []byte, hashFunc func() hash.Hash) ([]byte, error) {
	if verifyDataLength <= 0 {
		return nil, errInvalidHashLength
	}
	h := hashFunc()
	h.Write(handshakeBodies)
	return prf(masterSecret, label, h.Sum(nil), verifyDataLength, hashFunc), nil
}

// VerifyDataServerFromDigest computes a server Finished's verify_data from
// an already-finalized transcript digest, for callers that maintain a
// clonable running hash (see internal/transcript) rather than re-hashing
// the full transcript on every Finished.
func VerifyDataServerFromDigest(masterSecret, digest []byte, hashFunc func() hash.Hash) ([]byte, error) {
	return prf(masterSecret, "server finished", digest, verifyDataLength, hashFunc), nil
}

// VerifyDataClientFromDigest is VerifyDataServerFromDigest's counterpart
// for verifying a client's Finished message.
func VerifyDataClientFromDigest(masterSecret, digest []byte, hashFunc func() hash.Hash) ([]byte, error) {
	return prf(masterSecret, "client finished", digest, verifyDataLength, hashFunc), nil
}
