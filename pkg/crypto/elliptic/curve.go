// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package elliptic wraps the named curves this server offers for
// ECDHE-ECDSA key exchange: NIST P-256 via the standard library's
// crypto/ecdh, and X25519 via golang.org/x/crypto/curve25519 (pion/dtls's
// own choice for the curve the stdlib has no ecdh.Curve for pre-1.20 and
// which CoAP-over-DTLS deployments increasingly prefer for cheaper scalar
// multiplication on constrained devices).
package elliptic

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// CurveType is the IANA "Supported Groups" registry value named in the
// supported_elliptic_curves extension.
type CurveType uint16

// Curve types this server recognizes. secp256r1 is the only curve a
// conforming TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8 deployment is required to
// support; X25519 is offered as a faster alternative on constrained peers.
const (
	Secp256r1  CurveType = 23
	X25519Type CurveType = 29
)

var (
	errUnsupportedCurve = errors.New("elliptic: unsupported named curve")
	errInvalidPublicKey = errors.New("elliptic: invalid peer public key")
)

// Curve performs the server's half of an ephemeral ECDH exchange: generate
// a keypair, and derive the shared secret (the premaster secret's X
// coordinate, per spec Section 4.2) from a peer's public key.
type Curve interface {
	Type() CurveType
	GenerateKeypair() (public, private []byte, err error)
	SharedSecret(peerPublic, private []byte) ([]byte, error)
}

type p256Curve struct{}

func (p256Curve) Type() CurveType { return Secp256r1 }

func (p256Curve) GenerateKeypair() ([]byte, []byte, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv.PublicKey().Bytes(), priv.Bytes(), nil
}

func (p256Curve) SharedSecret(peerPublic, private []byte) ([]byte, error) {
	priv, err := ecdh.P256().NewPrivateKey(private)
	if err != nil {
		return nil, err
	}
	pub, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, errInvalidPublicKey
	}
	// crypto/ecdh's NIST-curve ECDH() returns the X coordinate of the
	// shared point, matching the premaster secret construction in
	// spec.md Section 4.2.
	return priv.ECDH(pub)
}

type x25519Curve struct{}

func (x25519Curve) Type() CurveType { return X25519Type }

func (x25519Curve) GenerateKeypair() ([]byte, []byte, error) {
	var private [32]byte
	if _, err := rand.Read(private[:]); err != nil {
		return nil, nil, err
	}
	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return public, private[:], nil
}

func (x25519Curve) SharedSecret(peerPublic, private []byte) ([]byte, error) {
	if len(peerPublic) != 32 {
		return nil, errInvalidPublicKey
	}
	return curve25519.X25519(private, peerPublic)
}

// P256 is the server's secp256r1 curve implementation.
var P256 Curve = p256Curve{}

// X25519 is the server's X25519 curve implementation.
var X25519 Curve = x25519Curve{}

// ByType resolves a CurveType named in a client's supported_elliptic_curves
// extension to this server's implementation, in priority order.
func ByType(t CurveType) (Curve, error) {
	switch t {
	case Secp256r1:
		return P256, nil
	case X25519Type:
		return X25519, nil
	default:
		return nil, errUnsupportedCurve
	}
}

// Supported returns the curves this server will negotiate, in the order it
// prefers them when intersecting against a client's list.
func Supported() []Curve {
	return []Curve{P256, X25519}
}
