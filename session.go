// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"github.com/denissytenkov/scandium/pkg/crypto/ciphersuite"
	"github.com/denissytenkov/scandium/pkg/crypto/prf"
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

// Session holds per-peer negotiated state. It is
// exclusively owned by its ServerHandshaker until Active becomes true, at
// which point ownership transfers to the record layer: the handshaker
// never mutates a Session after emitting its own Finished.
type Session struct {
	SessionID         []byte
	ProtocolVersion   protocol.Version
	CipherSuite       *ciphersuite.CipherSuite
	CompressionMethod protocol.CompressionMethodID

	MasterSecret []byte
	ClientRandom [handshake.RandomLength]byte
	ServerRandom [handshake.RandomLength]byte

	ReadEpoch  uint16
	WriteEpoch uint16

	SendRawPublicKey    bool
	ReceiveRawPublicKey bool

	Active bool
}

// EncryptionKeys derives the record layer's key block from this session's
// master secret and randoms. Called once, right
// before the record layer installs its write state for the terminal
// flight's ChangeCipherSpec.
func (s *Session) EncryptionKeys() (*prf.EncryptionKeys, error) {
	const aeadMACKeyLength = 0 // the AEAD suites this server negotiates carry no separate MAC key.
	return prf.GenerateEncryptionKeys(
		s.MasterSecret,
		s.ClientRandom[:],
		s.ServerRandom[:],
		aeadMACKeyLength,
		s.CipherSuite.KeyLength,
		s.CipherSuite.IVLength,
		ciphersuite.HashFunc(),
	)
}
