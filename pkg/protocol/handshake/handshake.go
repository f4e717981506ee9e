// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package handshake implements the DTLS handshake message framing,
// fragmentation header, and the wire codec for each handshake message
// this server produces or consumes (RFC 6347 Section 4.2, RFC 5246
// Section 7.4).
package handshake

// Type is the one-byte handshake message type.
type Type byte

// Handshake message types in use by this server core.
const (
	TypeHelloRequest       Type = 0
	TypeClientHello        Type = 1
	TypeServerHello        Type = 2
	TypeHelloVerifyRequest Type = 3
	TypeCertificate        Type = 11
	TypeServerKeyExchange  Type = 12
	TypeCertificateRequest Type = 13
	TypeServerHelloDone    Type = 14
	TypeCertificateVerify  Type = 15
	TypeClientKeyExchange  Type = 16
	TypeFinished           Type = 20
)

func (t Type) String() string {
	switch t {
	case TypeHelloRequest:
		return "HelloRequest"
	case TypeClientHello:
		return "ClientHello"
	case TypeServerHello:
		return "ServerHello"
	case TypeHelloVerifyRequest:
		return "HelloVerifyRequest"
	case TypeCertificate:
		return "Certificate"
	case TypeServerKeyExchange:
		return "ServerKeyExchange"
	case TypeCertificateRequest:
		return "CertificateRequest"
	case TypeServerHelloDone:
		return "ServerHelloDone"
	case TypeCertificateVerify:
		return "CertificateVerify"
	case TypeClientKeyExchange:
		return "ClientKeyExchange"
	case TypeFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Message is a single handshake message body, excluding the 12-byte
// handshake header.
type Message interface {
	Type() Type
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

// Handshake couples a Header to its decoded Message.
type Handshake struct {
	Header  Header
	Message Message
}

// Marshal encodes header and message as a single unfragmented handshake
// record body.
func (h *Handshake) Marshal() ([]byte, error) {
	body, err := h.Message.Marshal()
	if err != nil {
		return nil, err
	}

	h.Header.Type = h.Message.Type()
	h.Header.Length = uint32(len(body))
	h.Header.FragmentOffset = 0
	h.Header.FragmentLength = uint32(len(body))

	header, err := h.Header.Marshal()
	if err != nil {
		return nil, err
	}
	return append(header, body...), nil
}

// Unmarshal decodes a (possibly fragmented) handshake record body using
// factory to construct the Message for the header's Type.
func (h *Handshake) Unmarshal(data []byte, factory func(Type) (Message, error)) error {
	if err := h.Header.Unmarshal(data); err != nil {
		return err
	}
	if len(data) < HeaderSize+int(h.Header.FragmentLength) {
		return errBufferTooSmall
	}

	msg, err := factory(h.Header.Type)
	if err != nil {
		return err
	}
	if err := msg.Unmarshal(data[HeaderSize : HeaderSize+int(h.Header.FragmentLength)]); err != nil {
		return err
	}
	h.Message = msg
	return nil
}

// Fragment splits an already-marshaled handshake message body (without a
// handshake header) into MTU-sized handshake records, each carrying the same
// message_seq and a Header whose FragmentOffset/FragmentLength describe
// its slice of the body. It is the outbound counterpart of FragmentBuffer.
func Fragment(msgType Type, messageSeq uint16, body []byte, mtu int) ([][]byte, error) {
	if mtu <= HeaderSize {
		return nil, errFragmentTooSmall
	}
	chunk := mtu - HeaderSize
	if chunk <= 0 || len(body) == 0 {
		chunk = len(body)
		if chunk == 0 {
			chunk = 1
		}
	}

	var out [][]byte
	for offset := 0; offset < len(body) || (len(body) == 0 && offset == 0); {
		end := offset + chunk
		if end > len(body) {
			end = len(body)
		}
		hdr := Header{
			Type:            msgType,
			Length:          uint32(len(body)),
			MessageSequence: messageSeq,
			FragmentOffset:  uint32(offset),
			FragmentLength:  uint32(end - offset),
		}
		raw, err := hdr.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, append(raw, body[offset:end]...))
		if len(body) == 0 {
			break
		}
		offset = end
	}
	return out, nil
}
