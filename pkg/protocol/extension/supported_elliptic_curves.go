// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package extension

import (
	"encoding/binary"

	"github.com/denissytenkov/scandium/pkg/crypto/elliptic"
)

// SupportedEllipticCurves is the supported_groups extension (RFC 8422
// Section 5.1.1), the client's ordered preference of named curves.
type SupportedEllipticCurves struct {
	EllipticCurves []elliptic.CurveType
}

// TypeValue returns the extension TypeValue.
func (s SupportedEllipticCurves) TypeValue() TypeValue {
	return SupportedEllipticCurvesTypeValue
}

// Marshal encodes the extension body.
func (s *SupportedEllipticCurves) Marshal() ([]byte, error) {
	out := make([]byte, 2, 2+2*len(s.EllipticCurves))
	binary.BigEndian.PutUint16(out, uint16(2*len(s.EllipticCurves)))
	for _, c := range s.EllipticCurves {
		entry := make([]byte, 2)
		binary.BigEndian.PutUint16(entry, uint16(c))
		out = append(out, entry...)
	}
	return out, nil
}

// Unmarshal populates the extension from encoded data.
func (s *SupportedEllipticCurves) Unmarshal(data []byte) error {
	if len(data) < 2 {
		return errBufferTooSmall
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	if len(data) < 2+n || n%2 != 0 {
		return errLengthMismatch
	}
	s.EllipticCurves = make([]elliptic.CurveType, n/2)
	for i := range s.EllipticCurves {
		s.EllipticCurves[i] = elliptic.CurveType(binary.BigEndian.Uint16(data[2+2*i:]))
	}
	return nil
}
