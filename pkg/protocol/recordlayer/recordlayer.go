// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package recordlayer

import "errors"

var errBufferTooSmall = errors.New("recordlayer: buffer too small")

// RecordLayer pairs a Header with its (already-fragmented, already-framed)
// content bytes. It never encrypts or decrypts: that is the external
// record layer's job. It exists so the handshake core can hand the caller
// a ready-to-send unit instead of raw byte slices plus side-band metadata.
type RecordLayer struct {
	Header  Header
	Content []byte
}

// Marshal encodes header and content back to back.
func (r *RecordLayer) Marshal() ([]byte, error) {
	r.Header.ContentLength = uint16(len(r.Content))
	header, err := r.Header.Marshal()
	if err != nil {
		return nil, err
	}
	return append(header, r.Content...), nil
}

// Unmarshal splits a raw record into header and content.
func (r *RecordLayer) Unmarshal(data []byte) error {
	if err := r.Header.Unmarshal(data); err != nil {
		return err
	}
	if len(data) < HeaderSize+int(r.Header.ContentLength) {
		return errBufferTooSmall
	}
	r.Content = append([]byte{}, data[HeaderSize:HeaderSize+int(r.Header.ContentLength)]...)
	return nil
}
