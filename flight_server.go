// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"crypto/rand"

	"github.com/denissytenkov/scandium/pkg/crypto/ciphersuite"
	"github.com/denissytenkov/scandium/pkg/crypto/signaturehash"
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

const sessionIDLength = 32

// appendHandshakeRecord frames msg as a single unfragmented handshake
// record (spec.md Section 4.8), absorbs it into the transcript, advances
// message_seq, and appends it to records.
func (hs *ServerHandshaker) appendHandshakeRecord(records []Record, msg handshake.Message) ([]Record, error) {
	h := handshake.Handshake{
		Header:  handshake.Header{MessageSequence: hs.hc.nextMessageSeq},
		Message: msg,
	}
	raw, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	hs.hc.nextMessageSeq++
	hs.hc.absorb(raw)

	return append(records, Record{
		ContentType: protocol.ContentTypeHandshake,
		Epoch:       hs.session.WriteEpoch,
		Fragment:    raw,
	}), nil
}

// appendFragmentedCertificate frames a (possibly oversized) Certificate
// message as one or more fragments against the configured MTU
// (SPEC_FULL.md Section 4, "Fragmented outbound Certificate messages").
// The transcript absorbs the message in its unfragmented form exactly
// once: the Finished MAC is computed as if each handshake message were a
// single fragment (RFC 6347 Section 4.2.6), no matter how it goes out on
// the wire.
func (hs *ServerHandshaker) appendFragmentedCertificate(records []Record, msg *handshake.MessageCertificate) ([]Record, error) {
	body, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	fragments, err := handshake.Fragment(handshake.TypeCertificate, hs.hc.nextMessageSeq, body, hs.config.mtu())
	if err != nil {
		return nil, err
	}
	raw, err := reframe(handshake.Header{
		Type:            handshake.TypeCertificate,
		MessageSequence: hs.hc.nextMessageSeq,
	}, body)
	if err != nil {
		return nil, err
	}
	hs.hc.nextMessageSeq++
	hs.hc.absorb(raw)
	for _, frag := range fragments {
		records = append(records, Record{
			ContentType: protocol.ContentTypeHandshake,
			Epoch:       hs.session.WriteEpoch,
			Fragment:    frag,
		})
	}
	return records, nil
}

// buildServerFlight assembles the server's first flight on a valid-cookie
// ClientHello (spec.md Section 4.3): ServerHello, an optional Certificate
// and ServerKeyExchange for ECDHE-ECDSA, an optional CertificateRequest
// when client authentication is required, and ServerHelloDone.
func (hs *ServerHandshaker) buildServerFlight() (*Flight, error) {
	var records []Record

	serverHello, err := hs.buildServerHello()
	if err != nil {
		return nil, err
	}
	hs.handshakeLog.ServerHello = serverHello.MakeLog()
	records, err = hs.appendHandshakeRecord(records, serverHello)
	if err != nil {
		return nil, err
	}

	if hs.hc.keyExchangeAlgorithm == ciphersuite.KeyExchangeECDHE {
		if len(hs.config.Certificates) == 0 {
			return nil, errNoCertificates
		}
		cert := hs.selectCertificate()

		certMsg := &handshake.MessageCertificate{}
		if hs.session.SendRawPublicKey {
			certMsg.Certificate = [][]byte{cert.RawPublicKey}
		} else {
			certMsg.Certificate = cert.Chain
		}
		records, err = hs.appendFragmentedCertificate(records, certMsg)
		if err != nil {
			return nil, err
		}

		curve := hs.hc.ecdheCurve
		publicKey, privateKey, err := curve.GenerateKeypair()
		if err != nil {
			return nil, err
		}
		hs.hc.ecdhePrivateKey = privateKey

		signed := handshake.SignedServerKeyExchangeParams(
			hs.session.ClientRandom, hs.session.ServerRandom, curve.Type(), publicKey,
		)
		signature, err := signECDSA(cert.PrivateKey, signed)
		if err != nil {
			return nil, err
		}

		ske := &handshake.MessageServerKeyExchange{
			NamedCurve:         curve.Type(),
			PublicKey:          publicKey,
			HashAlgorithm:      signaturehash.Default.Hash,
			SignatureAlgorithm: signaturehash.Default.Signature,
			Signature:          signature,
		}
		records, err = hs.appendHandshakeRecord(records, ske)
		if err != nil {
			return nil, err
		}

		if hs.config.ClientAuthenticationRequired {
			req := &handshake.MessageCertificateRequest{
				CertificateTypes:        []handshake.ClientCertificateType{handshake.ECDSASign},
				SignatureHashAlgorithms: []signaturehash.Algorithm{signaturehash.Default},
				CertificateAuthorities:  hs.config.CertificateAuthorities,
			}
			records, err = hs.appendHandshakeRecord(records, req)
			if err != nil {
				return nil, err
			}
		}
	}

	records, err = hs.appendHandshakeRecord(records, &handshake.MessageServerHelloDone{})
	if err != nil {
		return nil, err
	}

	return &Flight{Records: records, Retransmittable: true}, nil
}

func (hs *ServerHandshaker) buildServerHello() (*handshake.MessageServerHello, error) {
	sessionID := make([]byte, sessionIDLength)
	if _, err := rand.Read(sessionID); err != nil {
		return nil, err
	}
	hs.session.SessionID = sessionID

	var random handshake.Random
	if err := random.Populate(); err != nil {
		return nil, err
	}
	hs.session.ServerRandom = random.MarshalFixed()

	cipherSuiteID := uint16(hs.session.CipherSuite.ID)

	var extensions []extension.Extension
	if hs.hc.hasServerCertTypeExt {
		ext := &extension.ServerCertificateType{}
		ext.CertificateTypes = []extension.CertificateType{hs.hc.negotiatedServerCertType}
		extensions = append(extensions, ext)
	}
	if hs.hc.hasClientCertTypeExt {
		ext := &extension.ClientCertificateType{}
		ext.CertificateTypes = []extension.CertificateType{hs.hc.negotiatedClientCertType}
		extensions = append(extensions, ext)
	}
	if hs.hc.keyExchangeAlgorithm == ciphersuite.KeyExchangeECDHE {
		extensions = append(extensions, &extension.SupportedPointFormats{PointFormats: []extension.PointFormat{extension.Uncompressed}})
	}
	if extensions == nil {
		extensions = []extension.Extension{}
	}

	return &handshake.MessageServerHello{
		Version:           protocol.Version1_2,
		Random:            random,
		SessionID:         sessionID,
		CipherSuiteID:     &cipherSuiteID,
		CompressionMethod: &protocol.CompressionMethod{ID: protocol.CompressionMethodNull},
		Extensions:        extensions,
	}, nil
}

func (hs *ServerHandshaker) selectCertificate() Certificate {
	for _, cert := range hs.config.Certificates {
		if hs.session.SendRawPublicKey && cert.RawPublicKey != nil {
			return cert
		}
		if !hs.session.SendRawPublicKey && cert.Chain != nil {
			return cert
		}
	}
	return hs.config.Certificates[0]
}
