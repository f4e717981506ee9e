// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package extension implements the ClientHello/ServerHello extension
// framing and the handful of extensions this server negotiates on:
// supported_elliptic_curves, supported_point_formats, and the raw-public-
// key certificate type extensions from RFC 7250.
package extension

import (
	"encoding/binary"
	"errors"
)

var (
	errBufferTooSmall = errors.New("extension: buffer too small")
	errLengthMismatch = errors.New("extension: declared length does not match body")
)

// TypeValue is the 16-bit extension type code.
type TypeValue uint16

// Extension type codes in use by this server.
const (
	SupportedEllipticCurvesTypeValue TypeValue = 10
	SupportedPointFormatsTypeValue   TypeValue = 11
	ClientCertificateTypeTypeValue   TypeValue = 19
	ServerCertificateTypeTypeValue   TypeValue = 20
)

// Extension is a single ClientHello/ServerHello extension.
type Extension interface {
	TypeValue() TypeValue
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
}

func newExtension(t TypeValue) (Extension, error) {
	switch t {
	case SupportedEllipticCurvesTypeValue:
		return &SupportedEllipticCurves{}, nil
	case SupportedPointFormatsTypeValue:
		return &SupportedPointFormats{}, nil
	case ClientCertificateTypeTypeValue:
		return &ClientCertificateType{}, nil
	case ServerCertificateTypeTypeValue:
		return &ServerCertificateType{}, nil
	default:
		return nil, nil //nolint:nilnil // unknown extensions are skipped, not fatal
	}
}

// Marshal encodes the HelloExtensions block: a 16-bit total length prefix
// followed by (type:16, length:16, data) entries.
func Marshal(extensions []Extension) ([]byte, error) {
	var body []byte
	for _, e := range extensions {
		data, err := e.Marshal()
		if err != nil {
			return nil, err
		}
		entry := make([]byte, 4)
		binary.BigEndian.PutUint16(entry[0:2], uint16(e.TypeValue()))
		binary.BigEndian.PutUint16(entry[2:4], uint16(len(data)))
		body = append(body, entry...)
		body = append(body, data...)
	}

	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	return append(out, body...), nil
}

// Unmarshal decodes a HelloExtensions block. Unrecognized extension types
// are skipped rather than treated as fatal, matching the liberal-in-what-
// you-accept posture RFC 6066 expects of extension handling.
func Unmarshal(data []byte) ([]Extension, error) {
	if len(data) < 2 {
		return nil, errBufferTooSmall
	}
	total := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+total {
		return nil, errLengthMismatch
	}
	body := data[2 : 2+total]

	var out []Extension
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, errBufferTooSmall
		}
		typeValue := TypeValue(binary.BigEndian.Uint16(body[0:2]))
		length := int(binary.BigEndian.Uint16(body[2:4]))
		if len(body) < 4+length {
			return nil, errLengthMismatch
		}
		entryData := body[4 : 4+length]

		ext, err := newExtension(typeValue)
		if err != nil {
			return nil, err
		}
		if ext != nil {
			if err := ext.Unmarshal(entryData); err != nil {
				return nil, err
			}
			out = append(out, ext)
		}
		body = body[4+length:]
	}
	if out == nil {
		out = []Extension{}
	}
	return out, nil
}
