// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import "errors"

var (
	errBufferTooSmall              = errors.New("handshake: buffer too small")
	errInvalidCompressionMethod    = errors.New("handshake: invalid compression method")
	errCipherSuiteUnset            = errors.New("handshake: cipher suite not set")
	errCompressionMethodUnset      = errors.New("handshake: compression method not set")
	errFragmentTooSmall            = errors.New("handshake: mtu too small to fragment")
	errUnknownMessageType          = errors.New("handshake: unknown message type")
	errInvalidRandomLength         = errors.New("handshake: invalid random length")
	errAmbiguousClientKeyExchange  = errors.New("handshake: client key exchange requires UnmarshalWithAlgorithm")
	errUnknownKeyExchangeAlgorithm = errors.New("handshake: unknown key exchange algorithm")
)
