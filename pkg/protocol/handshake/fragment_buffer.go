// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import "sort"

// fragment is one received slice of a handshake message body, keyed by its
// byte offset within the reassembled message.
type fragment struct {
	offset uint32
	data   []byte
}

// pendingMessage accumulates fragments for a single message_seq until every
// byte of its declared Length has arrived.
type pendingMessage struct {
	msgType Type
	length  uint32
	have    []fragment
	gotLen  uint32
}

// FragmentBuffer reassembles handshake messages that arrive split across
// multiple DTLS records (spec.md Section 4.7). Fragments for different
// message_seq values are tracked independently so that out-of-order
// delivery across messages, as well as out-of-order or overlapping
// fragments within one message, both resolve once enough bytes arrive.
//
// A FragmentBuffer is not safe for concurrent use; callers serialize access
// the same way they serialize delivery of records to a handshake context.
type FragmentBuffer struct {
	pending map[uint16]*pendingMessage
}

// NewFragmentBuffer returns an empty FragmentBuffer.
func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{pending: map[uint16]*pendingMessage{}}
}

// Push records one fragment of a handshake message. It returns the
// reassembled (msgType, body) and ok=true once every byte of the message
// has been seen; otherwise ok is false and the fragment is buffered.
func (b *FragmentBuffer) Push(hdr Header, body []byte) (Type, []byte, bool) {
	pm, ok := b.pending[hdr.MessageSequence]
	if !ok {
		pm = &pendingMessage{msgType: hdr.Type, length: hdr.Length}
		b.pending[hdr.MessageSequence] = pm
	}

	pm.have = append(pm.have, fragment{offset: hdr.FragmentOffset, data: body})
	sort.Slice(pm.have, func(i, j int) bool { return pm.have[i].offset < pm.have[j].offset })

	out := make([]byte, pm.length)
	var covered uint32
	for _, f := range pm.have {
		end := f.offset + uint32(len(f.data))
		if end > pm.length {
			end = pm.length
		}
		if f.offset > covered {
			// gap before this fragment; not yet contiguous from zero.
			continue
		}
		if end > covered {
			copy(out[f.offset:end], f.data[:end-f.offset])
			covered = end
		}
	}
	if covered < pm.length {
		return 0, nil, false
	}

	delete(b.pending, hdr.MessageSequence)
	return pm.msgType, out, true
}

// Reset discards all partially reassembled messages. The handshake core
// itself never calls it.
func (b *FragmentBuffer) Reset() {
	b.pending = map[uint16]*pendingMessage{}
}
