// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"errors"

	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/recordlayer"
)

var errTrailingBytes = errors.New("scandium: datagram ends before the record's declared length")

// DecodeRecords splits one UDP datagram into the DTLS records it carries.
// DTLS allows a single datagram to coalesce several records back to back;
// a caller feeds each returned Record to ServerHandshaker.ProcessRecord (or,
// for ContentTypeApplicationData, to its own decrypt path) in order.
//
// Decryption is not this function's job: during the handshake every record
// arrives in epoch 0 (plaintext), and once an epoch advances it is the
// caller's own record layer, not this core, that strips the AEAD tag before
// the content reaches here.
func DecodeRecords(datagram []byte) ([]Record, error) {
	var records []Record
	for len(datagram) > 0 {
		var hdr recordlayer.Header
		if err := hdr.Unmarshal(datagram); err != nil {
			return nil, err
		}
		end := recordlayer.HeaderSize + int(hdr.ContentLength)
		if len(datagram) < end {
			return nil, errTrailingBytes
		}
		records = append(records, Record{
			ContentType: hdr.ContentType,
			Epoch:       hdr.Epoch,
			Fragment:    append([]byte{}, datagram[recordlayer.HeaderSize:end]...),
		})
		datagram = datagram[end:]
	}
	return records, nil
}

// EncodeRecord frames a single outbound Record as a wire-ready DTLS record,
// stamping the protocol version and 48-bit sequence number a caller's
// record layer assigns per epoch.
func EncodeRecord(rec Record, version protocol.Version, sequenceNumber uint64) ([]byte, error) {
	rl := recordlayer.RecordLayer{
		Header: recordlayer.Header{
			ContentType:    rec.ContentType,
			Version:        version,
			Epoch:          rec.Epoch,
			SequenceNumber: sequenceNumber,
		},
		Content: rec.Fragment,
	}
	return rl.Marshal()
}
