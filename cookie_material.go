// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"encoding/binary"

	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

// cookieMaterial builds the byte string the HelloVerifyRequest cookie HMAC
// covers (spec.md Section 4.6): version, client_random, session_id,
// cipher_suites_bytes, compression_methods_bytes. The peer address is
// folded in separately by internal/cookie.Generator. The Cookie field
// itself is deliberately excluded: it is what Verify is trying to
// validate, so it cannot be part of the material a second ClientHello's
// cookie is checked against — the same fields, encoded the same way, must
// appear in both the cookie-less and the cookie-bearing ClientHello.
func cookieMaterial(ch *handshake.MessageClientHello) []byte {
	random := ch.Random.MarshalFixed()

	material := make([]byte, 0, 2+handshake.RandomLength+1+len(ch.SessionID)+2+2*len(ch.CipherSuiteIDs)+1+len(ch.CompressionMethods))
	material = append(material, ch.Version.Major, ch.Version.Minor)
	material = append(material, random[:]...)

	material = append(material, byte(len(ch.SessionID)))
	material = append(material, ch.SessionID...)

	suites := make([]byte, 2+2*len(ch.CipherSuiteIDs))
	binary.BigEndian.PutUint16(suites, uint16(2*len(ch.CipherSuiteIDs)))
	for i, id := range ch.CipherSuiteIDs {
		binary.BigEndian.PutUint16(suites[2+2*i:], id)
	}
	material = append(material, suites...)

	material = append(material, byte(len(ch.CompressionMethods)))
	for _, m := range ch.CompressionMethods {
		material = append(material, byte(m))
	}

	return material
}
