// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package extension

// CertificateType identifies the shape of a certificate message body, per
// RFC 7250 (raw public keys for TLS/DTLS).
type CertificateType byte

// Certificate types this server recognizes.
const (
	X509CertificateType         CertificateType = 0
	RawPublicKeyCertificateType CertificateType = 2
)

// certificateTypeList is the shared wire form for both the
// client_certificate_type and server_certificate_type extensions: a
// 1-byte count followed by that many CertificateType bytes. RFC 7250
// technically has the server echo a single un-prefixed byte in its
// response rather than a one-element list; this implementation uses the
// list form in both directions for codec symmetry with the ClientHello
// side.
type certificateTypeList struct {
	CertificateTypes []CertificateType
}

func (c *certificateTypeList) marshal() ([]byte, error) {
	out := make([]byte, 1+len(c.CertificateTypes))
	out[0] = byte(len(c.CertificateTypes))
	for i, t := range c.CertificateTypes {
		out[1+i] = byte(t)
	}
	return out, nil
}

func (c *certificateTypeList) unmarshal(data []byte) error {
	if len(data) < 1 {
		return errBufferTooSmall
	}
	n := int(data[0])
	if len(data) < 1+n {
		return errLengthMismatch
	}
	c.CertificateTypes = make([]CertificateType, n)
	for i := range c.CertificateTypes {
		c.CertificateTypes[i] = CertificateType(data[1+i])
	}
	return nil
}

// ClientCertificateType is the client_certificate_type extension: the
// client's (and, echoed by the server, the negotiated) certificate type
// for messages the *client* sends.
type ClientCertificateType struct {
	certificateTypeList
}

// TypeValue returns the extension TypeValue.
func (c ClientCertificateType) TypeValue() TypeValue { return ClientCertificateTypeTypeValue }

// Marshal encodes the extension body.
func (c *ClientCertificateType) Marshal() ([]byte, error) { return c.marshal() }

// Unmarshal populates the extension from encoded data.
func (c *ClientCertificateType) Unmarshal(data []byte) error { return c.unmarshal(data) }

// ServerCertificateType is the server_certificate_type extension: the
// client's preference (and, echoed by the server, the negotiated type)
// for messages the *server* sends.
type ServerCertificateType struct {
	certificateTypeList
}

// TypeValue returns the extension TypeValue.
func (s ServerCertificateType) TypeValue() TypeValue { return ServerCertificateTypeTypeValue }

// Marshal encodes the extension body.
func (s *ServerCertificateType) Marshal() ([]byte, error) { return s.marshal() }

// Unmarshal populates the extension from encoded data.
func (s *ServerCertificateType) Unmarshal(data []byte) error { return s.unmarshal(data) }
