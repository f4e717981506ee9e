// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"github.com/denissytenkov/scandium/pkg/crypto/elliptic"
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
)

// negotiateVersion enforces a fixed tie-break: this server speaks exactly
// DTLS 1.2. A client offering anything below 1.2 is rejected with
// PROTOCOL_VERSION; a client offering anything newer still gets 1.2
// (there is no newer version this server understands).
func negotiateVersion(offered protocol.Version) (protocol.Version, bool) {
	if !offered.SupportedAtLeast1_2() {
		return protocol.Version{}, false
	}
	return protocol.Version1_2, true
}

// negotiateCurve walks the client's supported_elliptic_curves extension in
// order and returns the first curve this server also implements.
func negotiateCurve(offered []elliptic.CurveType, serverSupported []elliptic.CurveType) (elliptic.Curve, bool) {
	supported := map[elliptic.CurveType]bool{}
	for _, t := range serverSupported {
		supported[t] = true
	}
	for _, t := range offered {
		if !supported[t] {
			continue
		}
		curve, err := elliptic.ByType(t)
		if err != nil {
			continue
		}
		return curve, true
	}
	return nil, false
}

// negotiateCertificateType intersects a client's certificate-type
// extension list against this server's supported list and returns the
// first entry present in both, preserving the client's preference order.
// A server that instead returned the client's first preference
// unconditionally, with no capability filter, could negotiate a
// certificate type it cannot actually send; see DESIGN.md "Open
// Questions".
func negotiateCertificateType(clientOffered, serverSupported []extension.CertificateType) (extension.CertificateType, bool) {
	supported := map[extension.CertificateType]bool{}
	for _, t := range serverSupported {
		supported[t] = true
	}
	for _, t := range clientOffered {
		if supported[t] {
			return t, true
		}
	}
	return 0, false
}
