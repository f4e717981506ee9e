// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"crypto/ecdsa"
	"crypto/x509"
	"errors"
)

var (
	errEmptyCertificateMessage = errors.New("scandium: Certificate message carries no entries")
	errNotECDSAPublicKey       = errors.New("scandium: certificate does not carry an ECDSA public key")
)

// extractECDSAPublicKey pulls the ECDSA public key out of a client's
// Certificate message, per spec.md Section 4.3 item 2: a single raw
// SubjectPublicKeyInfo when RAW_PUBLIC_KEY was negotiated, otherwise the
// leaf of an X.509 chain verified against trustAnchors when configured.
func extractECDSAPublicKey(certs [][]byte, rawPublicKey bool, trustAnchors *x509.CertPool) (*ecdsa.PublicKey, error) {
	if len(certs) == 0 {
		return nil, errEmptyCertificateMessage
	}

	if rawPublicKey {
		pub, err := x509.ParsePKIXPublicKey(certs[0])
		if err != nil {
			return nil, err
		}
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, errNotECDSAPublicKey
		}
		return key, nil
	}

	leaf, err := x509.ParseCertificate(certs[0])
	if err != nil {
		return nil, err
	}

	if trustAnchors != nil {
		intermediates := x509.NewCertPool()
		for _, raw := range certs[1:] {
			if cert, err := x509.ParseCertificate(raw); err == nil {
				intermediates.AddCert(cert)
			}
		}
		if _, err := leaf.Verify(x509.VerifyOptions{
			Roots:         trustAnchors,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}); err != nil {
			return nil, err
		}
	}

	key, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errNotECDSAPublicKey
	}
	return key, nil
}
