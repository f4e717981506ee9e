// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// RandomLength is the length in bytes of a ClientHello/ServerHello Random.
const RandomLength = 32

// RandomBytesLength is the length of the random portion, after the 4-byte
// GMT Unix timestamp.
const RandomBytesLength = 28

// Random is the 32-byte structure exchanged in ClientHello/ServerHello:
// a 4-byte GMT Unix timestamp followed by 28 bytes from a secure RNG.
type Random struct {
	GMTUnixTime time.Time
	RandomBytes [RandomBytesLength]byte
}

// Populate fills Random with the current time and fresh random bytes.
func (r *Random) Populate() error {
	r.GMTUnixTime = time.Now()
	if _, err := rand.Read(r.RandomBytes[:]); err != nil {
		return err
	}
	return nil
}

// MarshalFixed encodes Random into a fixed 32-byte array.
func (r *Random) MarshalFixed() [RandomLength]byte {
	var out [RandomLength]byte
	binary.BigEndian.PutUint32(out[0:4], uint32(r.GMTUnixTime.Unix()))
	copy(out[4:], r.RandomBytes[:])
	return out
}

// UnmarshalFixed populates Random from a fixed 32-byte array.
func (r *Random) UnmarshalFixed(in [RandomLength]byte) {
	r.GMTUnixTime = time.Unix(int64(binary.BigEndian.Uint32(in[0:4])), 0)
	copy(r.RandomBytes[:], in[4:])
}
