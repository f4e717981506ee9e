// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import (
	"encoding/binary"

	"github.com/denissytenkov/scandium/pkg/crypto/signaturehash"
)

// ClientCertificateType is the certificate_type value a CertificateRequest
// asks the client to supply. This server always asks for ECDSA_SIGN.
type ClientCertificateType byte

// ECDSASign is the only client certificate type this server requests.
const ECDSASign ClientCertificateType = 64

// MessageCertificateRequest asks the client for a certificate, emitted
// only when client authentication is required and the key exchange is
// EC_DIFFIE_HELLMAN (spec.md Section 4.3).
//
// https://tools.ietf.org/html/rfc5246#section-7.4.4
type MessageCertificateRequest struct {
	CertificateTypes        []ClientCertificateType
	SignatureHashAlgorithms []signaturehash.Algorithm
	CertificateAuthorities  [][]byte
}

// Type returns the Handshake Type.
func (m MessageCertificateRequest) Type() Type {
	return TypeCertificateRequest
}

// Marshal encodes the Handshake.
func (m *MessageCertificateRequest) Marshal() ([]byte, error) {
	out := []byte{byte(len(m.CertificateTypes))}
	for _, t := range m.CertificateTypes {
		out = append(out, byte(t))
	}

	sigHashBytes := make([]byte, 2, 2+2*len(m.SignatureHashAlgorithms))
	binary.BigEndian.PutUint16(sigHashBytes, uint16(2*len(m.SignatureHashAlgorithms)))
	for _, alg := range m.SignatureHashAlgorithms {
		sigHashBytes = append(sigHashBytes, byte(alg.Hash), byte(alg.Signature))
	}
	out = append(out, sigHashBytes...)

	var caBytes []byte
	for _, ca := range m.CertificateAuthorities {
		entry := make([]byte, 2)
		binary.BigEndian.PutUint16(entry, uint16(len(ca)))
		caBytes = append(caBytes, entry...)
		caBytes = append(caBytes, ca...)
	}
	caLen := make([]byte, 2)
	binary.BigEndian.PutUint16(caLen, uint16(len(caBytes)))
	out = append(out, caLen...)
	return append(out, caBytes...), nil
}

// Unmarshal populates the message from encoded data.
func (m *MessageCertificateRequest) Unmarshal(data []byte) error {
	if len(data) < 1 {
		return errBufferTooSmall
	}
	n := int(data[0])
	offset := 1
	if len(data) < offset+n {
		return errBufferTooSmall
	}
	m.CertificateTypes = make([]ClientCertificateType, n)
	for i := range m.CertificateTypes {
		m.CertificateTypes[i] = ClientCertificateType(data[offset+i])
	}
	offset += n

	if len(data) < offset+2 {
		return errBufferTooSmall
	}
	sigHashLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+sigHashLen || sigHashLen%2 != 0 {
		return errBufferTooSmall
	}
	m.SignatureHashAlgorithms = make([]signaturehash.Algorithm, sigHashLen/2)
	for i := range m.SignatureHashAlgorithms {
		m.SignatureHashAlgorithms[i] = signaturehash.Algorithm{
			Hash:      signaturehash.Hash(data[offset+2*i]),
			Signature: signaturehash.Signature(data[offset+2*i+1]),
		}
	}
	offset += sigHashLen

	if len(data) < offset+2 {
		return errBufferTooSmall
	}
	caLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) < offset+caLen {
		return errBufferTooSmall
	}
	body := data[offset : offset+caLen]
	m.CertificateAuthorities = nil
	for len(body) > 0 {
		if len(body) < 2 {
			return errBufferTooSmall
		}
		caEntryLen := int(binary.BigEndian.Uint16(body))
		if len(body) < 2+caEntryLen {
			return errBufferTooSmall
		}
		m.CertificateAuthorities = append(m.CertificateAuthorities, append([]byte{}, body[2:2+caEntryLen]...))
		body = body[2+caEntryLen:]
	}
	return nil
}
