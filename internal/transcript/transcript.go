// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package transcript accumulates the running hash of the handshake
// messages exchanged so far, for use in Finished verify_data. It needs to
// produce two distinct digests that diverge only in their last message:
// the server signs a transcript that includes the client's Finished, but
// must verify that same client Finished against the transcript without
// it. Rather than keep the raw byte log around and re-hash it twice,
// Sum clones the running hash.Hash state the same way crypto/tls clones
// its own transcript hash internally, via the digest's
// encoding.BinaryMarshaler/BinaryUnmarshaler implementation.
package transcript

import (
	"encoding"
	"fmt"
	"hash"
)

// Hash accumulates handshake message bytes into a running digest.
type Hash struct {
	newHash func() hash.Hash
	h       hash.Hash
}

// New returns an empty Hash using newHash (crypto/sha256.New for every
// cipher suite this server negotiates).
func New(newHash func() hash.Hash) *Hash {
	return &Hash{newHash: newHash, h: newHash()}
}

// Write appends a handshake message's bytes to the transcript.
func (t *Hash) Write(p []byte) {
	t.h.Write(p)
}

// Sum returns the digest of the transcript so far without disturbing it,
// so that later messages can still be appended and summed again.
func (t *Hash) Sum() ([]byte, error) {
	clone, err := t.clone()
	if err != nil {
		return nil, err
	}
	return clone.Sum(nil), nil
}

// clone duplicates the running hash's internal state by round-tripping it
// through encoding.BinaryMarshaler/BinaryUnmarshaler, which crypto/sha256
// implements specifically to support this pattern.
func (t *Hash) clone() (hash.Hash, error) {
	marshaler, ok := t.h.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("transcript: hash %T does not support state cloning", t.h)
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		return nil, err
	}

	clone := t.newHash()
	unmarshaler, ok := clone.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("transcript: hash %T does not support state cloning", clone)
	}
	if err := unmarshaler.UnmarshalBinary(state); err != nil {
		return nil, err
	}
	return clone, nil
}
