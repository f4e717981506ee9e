// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"crypto/ecdsa"
	"crypto/x509"
	"time"

	"github.com/pion/logging"

	"github.com/denissytenkov/scandium/pkg/crypto/elliptic"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
)

// Certificate pairs a certificate chain (or a single raw public key, when
// RawPublicKey is non-nil) with the private key used to sign
// ServerKeyExchange and CertificateVerify.
type Certificate struct {
	// Chain holds the DER-encoded X.509 certificate chain, leaf first.
	// Nil when RawPublicKey is set.
	Chain [][]byte
	// RawPublicKey holds a DER-encoded SubjectPublicKeyInfo, sent instead
	// of Chain when the negotiated certificate type is RAW_PUBLIC_KEY.
	RawPublicKey []byte
	PrivateKey   *ecdsa.PrivateKey
}

// PSKCallback looks up the pre-shared key for a client-supplied identity.
// Returning a nil key is equivalent to an unknown identity: unknown
// identity is always a fatal HANDSHAKE_FAILURE, even if the server also
// holds a wildcard key.
type PSKCallback func(identity string) (key []byte, ok bool)

// Config is the explicit, injected configuration for a ServerHandshaker.
// Every tunable a handshake needs is a field here rather than a
// process-wide global, so a listener can run handshakers with different
// policies side by side.
type Config struct {
	// ClientAuthenticationRequired drives CertificateRequest emission and
	// the mandatory-auth check on Finished. Ignored for the PSK key
	// exchange, which never requests client certificates.
	ClientAuthenticationRequired bool

	// Certificates are offered when the negotiated suite is
	// TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8. The first entry compatible with
	// the negotiated server certificate type is used.
	Certificates []Certificate

	// TrustAnchors verifies a client certificate chain when client
	// authentication is in use and the client did not negotiate
	// RAW_PUBLIC_KEY.
	TrustAnchors *x509.CertPool

	// CertificateAuthorities are the DER-encoded distinguished names
	// advertised in CertificateRequest, telling clients which issuers this
	// server will accept a certificate from. May be empty.
	CertificateAuthorities [][]byte

	// PSK resolves preshared key identities for TLS_PSK_WITH_AES_128_CCM_8.
	PSK PSKCallback

	// EllipticCurves restricts the named curves this server accepts for
	// EC_DIFFIE_HELLMAN, in preference order. Defaults to
	// elliptic.Supported() (P-256, then X25519) when nil.
	EllipticCurves []elliptic.CurveType

	// ServerCertificateTypes and ClientCertificateTypes are this server's
	// supported lists for the respective RFC 7250 extensions, in
	// preference order. The negotiated type is the first entry also
	// present in the client's offer — negotiation intersects both lists
	// rather than trusting the client's first preference unconditionally;
	// see DESIGN.md. Default: {RawPublicKey, X509}.
	ServerCertificateTypes []extension.CertificateType
	ClientCertificateTypes []extension.CertificateType

	// CookieRotationInterval controls how often the HelloVerifyRequest
	// cookie secret rotates. Zero disables rotation.
	CookieRotationInterval time.Duration

	// MTU bounds the outbound Certificate message's fragment size: an
	// oversized Certificate is split across multiple fragments with
	// increasing fragment_offset. Every other handshake message goes out as
	// a single fragment regardless of MTU. Defaults to 1200 when zero, a
	// conservative value safe for constrained-device links.
	MTU int

	LoggerFactory logging.LoggerFactory
}

const defaultMTU = 1200

func defaultCertificateTypes() []extension.CertificateType {
	return []extension.CertificateType{extension.RawPublicKeyCertificateType, extension.X509CertificateType}
}

func (c *Config) mtu() int {
	if c.MTU > 0 {
		return c.MTU
	}
	return defaultMTU
}

func (c *Config) serverCertificateTypes() []extension.CertificateType {
	if len(c.ServerCertificateTypes) > 0 {
		return c.ServerCertificateTypes
	}
	return defaultCertificateTypes()
}

func (c *Config) clientCertificateTypes() []extension.CertificateType {
	if len(c.ClientCertificateTypes) > 0 {
		return c.ClientCertificateTypes
	}
	return defaultCertificateTypes()
}

func (c *Config) ellipticCurves() []elliptic.CurveType {
	if len(c.EllipticCurves) > 0 {
		return c.EllipticCurves
	}
	out := make([]elliptic.CurveType, 0, 2)
	for _, curve := range elliptic.Supported() {
		out = append(out, curve.Type())
	}
	return out
}

func (c *Config) loggerFactory() logging.LoggerFactory {
	if c.LoggerFactory != nil {
		return c.LoggerFactory
	}
	return logging.NewDefaultLoggerFactory()
}
