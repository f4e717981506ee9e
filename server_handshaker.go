// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package scandium implements a server-side DTLS 1.2 handshake state
// machine for constrained-device deployments (CoAP-over-DTLS and similar),
// grounded on pion/dtls's architecture but scoped to exactly the messages,
// cipher suites, and negotiation rules this document's component design
// calls for. It never touches a socket or a cipher: ServerHandshaker
// consumes already-demultiplexed records and returns flights for the
// caller's record layer to encrypt and transmit.
package scandium

import (
	"bytes"
	"net/netip"

	"github.com/pion/logging"
	"github.com/zmap/zcrypto/tls"

	"github.com/denissytenkov/scandium/internal/cookie"
	"github.com/denissytenkov/scandium/internal/transcript"
	"github.com/denissytenkov/scandium/pkg/crypto/ciphersuite"
	"github.com/denissytenkov/scandium/pkg/crypto/prf"
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/alert"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

// ServerHandshaker drives one peer's DTLS 1.2 server handshake, RFC 6347.
// A ServerHandshaker is not safe for concurrent use: callers must
// serialize calls to ProcessRecord for a given peer themselves (a per-peer
// mutex, or single-goroutine ownership).
type ServerHandshaker struct {
	config      *Config
	recordLayer RecordLayer
	cookies     *cookie.Generator
	peerAddr    netip.AddrPort

	log          logging.LeveledLogger
	handshakeLog tls.ServerHandshake

	session *Session
	hc      *handshakeContext
}

// NewServerHandshaker constructs a handshaker for one peer. cookies is
// shared across every peer's handshaker on a listener: the cookie secret
// is the one piece of cross-instance shared state. A nil cookies gets a
// fresh per-handshaker Generator rotating on config.CookieRotationInterval,
// which is only appropriate for a listener serving a single peer.
func NewServerHandshaker(config *Config, recordLayer RecordLayer, cookies *cookie.Generator, peerAddr netip.AddrPort) (*ServerHandshaker, error) {
	if config == nil {
		return nil, errNilConfig
	}
	if recordLayer == nil {
		return nil, errNilRecordLayer
	}
	if cookies == nil {
		var err error
		cookies, err = cookie.NewGenerator(config.CookieRotationInterval)
		if err != nil {
			return nil, err
		}
	}
	return &ServerHandshaker{
		config:      config,
		recordLayer: recordLayer,
		cookies:     cookies,
		peerAddr:    peerAddr,
		log:         config.loggerFactory().NewLogger("scandium"),
		session:     &Session{ProtocolVersion: protocol.Version1_2},
		hc:          newHandshakeContext(),
	}, nil
}

// Session returns the handshaker's Session object. It is safe to read at
// any time; Active becomes true only after ProcessRecord returns the
// terminal flight.
func (hs *ServerHandshaker) Session() *Session { return hs.session }

// HandshakeLog returns the passive-fingerprint-style record this
// handshake has accumulated so far: ServerHello, the client and server
// Finished messages. It does not cover Certificate/KeyExchange messages;
// see DESIGN.md.
func (hs *ServerHandshaker) HandshakeLog() *tls.ServerHandshake { return &hs.handshakeLog }

// ProcessRecord advances the state machine by one already-decrypted record.
// It returns the flight to deliver, or nil if the record requires no reply
// (an out-of-order or duplicate fragment, buffered for later). A
// *HandshakeError return always carries the fatal alert the caller must
// deliver before tearing down.
func (hs *ServerHandshaker) ProcessRecord(rec Record) (*Flight, error) {
	switch rec.ContentType {
	case protocol.ContentTypeHandshake:
		return hs.processHandshakeFragment(rec.Fragment)
	case protocol.ContentTypeChangeCipherSpec:
		return hs.processChangeCipherSpec(rec)
	case protocol.ContentTypeAlert:
		return hs.processAlert(rec)
	default:
		return nil, fatal(alert.UnexpectedMessage, errUnexpectedRecordType)
	}
}

func (hs *ServerHandshaker) processAlert(rec Record) (*Flight, error) {
	var a alert.Alert
	if err := a.Unmarshal(rec.Fragment); err != nil {
		return nil, nil // truncated/malformed alert records are dropped silently.
	}
	if a.Level == alert.Fatal || a.Description == alert.CloseNotify {
		hs.log.Tracef("peer alert %s, tearing down handshake", a.Error())
		return nil, &HandshakeError{Alert: &a, Err: nil}
	}
	return nil, nil
}

func (hs *ServerHandshaker) processChangeCipherSpec(rec Record) (*Flight, error) {
	// A peer that never saw our terminal flight retransmits its whole last
	// flight, CCS included. Only the repeated Finished earns a response;
	// the CCS preceding it is absorbed without reinstalling anything.
	if hs.hc.lastFlight != nil {
		return nil, nil
	}
	// ChangeCipherSpec is valid from stateExpectCertificateVerifyOrCCS (a
	// client that never authenticates, or a PSK handshake, goes straight
	// from ClientKeyExchange to CCS) as well as from stateExpectChangeCipherSpec
	// (a client that did send CertificateVerify). Whether client
	// authentication was actually required and missing is enforced later,
	// against the client's Finished, not here.
	if hs.hc.state != stateExpectCertificateVerifyOrCCS && hs.hc.state != stateExpectChangeCipherSpec {
		return nil, fatal(alert.UnexpectedMessage, nil)
	}
	if len(rec.Fragment) != 1 || rec.Fragment[0] != 0x01 {
		return nil, nil // transient parsing fault: drop and await retransmission.
	}
	if err := hs.recordLayer.InstallReadState(hs.session); err != nil {
		return nil, fatal(alert.InternalError, err)
	}
	hs.session.ReadEpoch++
	hs.hc.state = stateExpectClientFinished
	return nil, nil
}

// processHandshakeFragment decodes the 12-byte handshake header, feeds the
// fragment into the reassembler, and — once a message is fully
// reassembled — dispatches it. Messages with a message_seq later than the
// next expected one are queued and replayed once their turn comes;
// messages with an earlier message_seq are dropped. Only the next-expected
// message_seq is consumed immediately.
func (hs *ServerHandshaker) processHandshakeFragment(data []byte) (*Flight, error) {
	var hdr handshake.Header
	if err := hdr.Unmarshal(data); err != nil {
		return nil, nil
	}
	if len(data) < handshake.HeaderSize+int(hdr.FragmentLength) {
		return nil, nil
	}
	body := data[handshake.HeaderSize : handshake.HeaderSize+int(hdr.FragmentLength)]

	msgType, full, ok := hs.hc.fragments.Push(hdr, body)
	if !ok {
		return nil, nil
	}

	// The two cookie-exchange states only ever expect a ClientHello and
	// never advance message_seq bookkeeping the way the post-cookie states
	// do (the source never assigns a message_seq the client must match
	// before the cookie round trip).
	if hs.hc.state == stateExpectClientHelloNoCookie || hs.hc.state == stateExpectClientHelloWithCookie {
		if msgType != handshake.TypeClientHello {
			return nil, fatal(alert.UnexpectedMessage, nil)
		}
		return hs.handleClientHello(hdr, full)
	}

	if hdr.MessageSequence != hs.hc.nextClientMessageSeq {
		if hdr.MessageSequence > hs.hc.nextClientMessageSeq {
			hs.hc.queued[hdr.MessageSequence] = queuedRecord{msgType: msgType, body: full}
		}
		return nil, nil
	}

	flight, err := hs.dispatch(msgType, full, hdr)
	if err != nil || flight != nil {
		return flight, err
	}
	hs.hc.nextClientMessageSeq++

	for {
		q, ok := hs.hc.queued[hs.hc.nextClientMessageSeq]
		if !ok {
			break
		}
		delete(hs.hc.queued, hs.hc.nextClientMessageSeq)
		flight, err := hs.dispatch(q.msgType, q.body, handshake.Header{Type: q.msgType, MessageSequence: hs.hc.nextClientMessageSeq})
		if err != nil || flight != nil {
			return flight, err
		}
		hs.hc.nextClientMessageSeq++
	}
	return nil, nil
}

// dispatch routes a fully reassembled handshake message to its handler per
// the current state's transition table. It reframes the message as a
// single unfragmented record and passes those bytes to the handler along
// with the body; each handler absorbs them into the transcript once it has
// accepted the message.
func (hs *ServerHandshaker) dispatch(msgType handshake.Type, body []byte, hdr handshake.Header) (*Flight, error) {
	raw, err := reframe(hdr, body)
	if err != nil {
		return nil, fatal(alert.InternalError, err)
	}

	switch hs.hc.state {
	case stateExpectClientCertOrKX:
		switch msgType {
		case handshake.TypeCertificate:
			return nil, hs.handleCertificate(raw, body)
		case handshake.TypeClientKeyExchange:
			return hs.handleClientKeyExchange(raw, body)
		}
	case stateExpectCertificateVerifyOrCCS:
		if msgType == handshake.TypeCertificateVerify {
			return nil, hs.handleCertificateVerify(raw, body)
		}
	case stateExpectClientFinished:
		if msgType == handshake.TypeFinished {
			return hs.handleFinished(raw, body)
		}
	case stateDone:
		// The only message a completed handshake still answers is a
		// repeated client Finished, meaning the peer never saw our terminal
		// flight; handleFinished re-emits it verbatim.
		if msgType == handshake.TypeFinished {
			return hs.handleFinished(raw, body)
		}
	}
	return nil, fatal(alert.UnexpectedMessage, nil)
}

// reframe re-encodes a reassembled message's header as a single
// unfragmented handshake record, the form the transcript and Finished
// computations operate on regardless of how the message actually arrived
// on the wire: fragmentation is not part of the transcript's meaning, only
// its delivery.
func reframe(hdr handshake.Header, body []byte) ([]byte, error) {
	hdr.FragmentOffset = 0
	hdr.FragmentLength = uint32(len(body))
	hdr.Length = uint32(len(body))
	raw, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}
	return append(raw, body...), nil
}

func (hs *ServerHandshaker) handleClientHello(hdr handshake.Header, body []byte) (*Flight, error) {
	var ch handshake.MessageClientHello
	if err := ch.Unmarshal(body); err != nil {
		return nil, nil // truncated ClientHello: drop, await retransmission.
	}

	material := cookieMaterial(&ch)
	if len(ch.Cookie) == 0 || !hs.cookies.Verify(hs.peerAddr, material, ch.Cookie) {
		newCookie := hs.cookies.Generate(hs.peerAddr, material)
		hs.hc.state = stateExpectClientHelloWithCookie
		hs.hc.cookie = newCookie
		return hs.buildHelloVerifyRequest(newCookie)
	}

	version, ok := negotiateVersion(ch.Version)
	if !ok {
		return nil, fatal(alert.ProtocolVersion, nil)
	}

	offered := make([]ciphersuite.ID, len(ch.CipherSuiteIDs))
	for i, id := range ch.CipherSuiteIDs {
		offered[i] = ciphersuite.ID(id)
	}
	suite, ok := ciphersuite.Negotiate(offered)
	if !ok {
		return nil, fatal(alert.HandshakeFailure, nil)
	}

	hs.session.ProtocolVersion = version
	hs.session.CipherSuite = suite
	hs.session.CompressionMethod = protocol.CompressionMethodNull
	hs.session.ClientRandom = ch.Random.MarshalFixed()

	hs.hc.clientHello = &ch
	hs.hc.keyExchangeAlgorithm = keyExchangeAlgorithmFor(suite)

	if err := hs.negotiateExtensions(&ch); err != nil {
		return nil, err
	}

	raw, err := reframe(hdr, body)
	if err != nil {
		return nil, fatal(alert.InternalError, err)
	}
	hs.hc.runningDigest = transcript.New(ciphersuite.HashFunc())
	hs.hc.absorb(raw)
	hs.hc.nextClientMessageSeq = hdr.MessageSequence + 1
	hs.hc.state = stateExpectClientCertOrKX

	return hs.buildServerFlight()
}

func keyExchangeAlgorithmFor(suite *ciphersuite.CipherSuite) ciphersuite.KeyExchangeAlgorithm {
	return suite.KeyExchangeAlgorithm
}

func (hs *ServerHandshaker) negotiateExtensions(ch *handshake.MessageClientHello) error {
	var curves *extension.SupportedEllipticCurves
	var clientCertType *extension.ClientCertificateType
	var serverCertType *extension.ServerCertificateType
	for _, ext := range ch.Extensions {
		switch e := ext.(type) {
		case *extension.SupportedEllipticCurves:
			curves = e
		case *extension.ClientCertificateType:
			clientCertType = e
		case *extension.ServerCertificateType:
			serverCertType = e
		}
	}

	if hs.hc.keyExchangeAlgorithm == ciphersuite.KeyExchangeECDHE {
		if curves == nil {
			return fatal(alert.HandshakeFailure, nil)
		}
		curve, ok := negotiateCurve(curves.EllipticCurves, hs.config.ellipticCurves())
		if !ok {
			return fatal(alert.HandshakeFailure, nil)
		}
		hs.hc.ecdheCurve = curve
	}

	if serverCertType != nil {
		t, ok := negotiateCertificateType(serverCertType.CertificateTypes, hs.config.serverCertificateTypes())
		if !ok {
			return fatal(alert.HandshakeFailure, nil)
		}
		hs.hc.hasServerCertTypeExt = true
		hs.hc.negotiatedServerCertType = t
		hs.session.SendRawPublicKey = t == extension.RawPublicKeyCertificateType
	}
	if clientCertType != nil {
		t, ok := negotiateCertificateType(clientCertType.CertificateTypes, hs.config.clientCertificateTypes())
		if !ok {
			return fatal(alert.HandshakeFailure, nil)
		}
		hs.hc.hasClientCertTypeExt = true
		hs.hc.negotiatedClientCertType = t
		hs.session.ReceiveRawPublicKey = t == extension.RawPublicKeyCertificateType
	}
	return nil
}

func (hs *ServerHandshaker) handleCertificate(raw, body []byte) error {
	if hs.hc.clientCertSeqReceived {
		return nil // duplicate Certificate message: ignore silently.
	}
	var cert handshake.MessageCertificate
	if err := cert.Unmarshal(body); err != nil {
		return nil
	}
	pub, err := extractECDSAPublicKey(cert.Certificate, hs.session.ReceiveRawPublicKey, hs.config.TrustAnchors)
	if err != nil {
		return fatal(alert.HandshakeFailure, err)
	}
	hs.hc.clientCertificate = &cert
	hs.hc.clientPublicKey = pub
	hs.hc.clientCertSeqReceived = true
	hs.hc.absorb(raw)
	return nil
}

func (hs *ServerHandshaker) handleClientKeyExchange(raw, body []byte) (*Flight, error) {
	var cke handshake.MessageClientKeyExchange
	var alg handshake.KeyExchangeAlgorithm
	switch hs.hc.keyExchangeAlgorithm {
	case ciphersuite.KeyExchangePSK:
		alg = handshake.KeyExchangePSK
	case ciphersuite.KeyExchangeECDHE:
		alg = handshake.KeyExchangeECDHE
	default:
		alg = handshake.KeyExchangeNone
	}
	if err := cke.UnmarshalWithAlgorithm(body, alg); err != nil {
		return nil, nil
	}

	var premaster []byte
	switch hs.hc.keyExchangeAlgorithm {
	case ciphersuite.KeyExchangePSK:
		if hs.config.PSK == nil {
			return nil, fatal(alert.HandshakeFailure, nil)
		}
		key, ok := hs.config.PSK(string(cke.IdentityHint))
		if !ok || key == nil {
			return nil, fatal(alert.HandshakeFailure, nil)
		}
		premaster = prf.PSKPreMasterSecret(key)
	case ciphersuite.KeyExchangeECDHE:
		shared, err := prf.PreMasterSecret(cke.PublicKey, hs.hc.ecdhePrivateKey, hs.hc.ecdheCurve)
		if err != nil {
			return nil, fatal(alert.HandshakeFailure, err)
		}
		premaster = shared
	default:
		premaster = []byte{}
	}

	master, err := prf.MasterSecret(premaster, hs.session.ClientRandom[:], hs.session.ServerRandom[:], ciphersuite.HashFunc())
	if err != nil {
		return nil, fatal(alert.InternalError, err)
	}
	hs.session.MasterSecret = master
	hs.hc.clientKeyExchange = &cke
	hs.hc.absorb(raw)
	hs.hc.state = stateExpectCertificateVerifyOrCCS
	return nil, nil
}

func (hs *ServerHandshaker) handleCertificateVerify(raw, body []byte) error {
	var cv handshake.MessageCertificateVerify
	if err := cv.Unmarshal(body); err != nil {
		return nil
	}
	if hs.hc.clientPublicKey == nil {
		return fatal(alert.HandshakeFailure, nil)
	}
	if !verifyECDSA(hs.hc.clientPublicKey, hs.hc.transcriptBytes, cv.Signature) {
		return fatal(alert.HandshakeFailure, nil)
	}
	hs.hc.certificateVerify = &cv
	hs.hc.absorb(raw)
	hs.hc.state = stateExpectChangeCipherSpec
	return nil
}

func (hs *ServerHandshaker) handleFinished(raw, body []byte) (*Flight, error) {
	if hs.hc.lastFlight != nil {
		hs.log.Trace("duplicate client Finished, re-emitting terminal flight")
		return hs.hc.lastFlight, nil
	}

	if hs.hc.keyExchangeAlgorithm == ciphersuite.KeyExchangeECDHE && hs.config.ClientAuthenticationRequired {
		if hs.hc.clientCertificate == nil || hs.hc.certificateVerify == nil {
			return nil, fatal(alert.HandshakeFailure, nil)
		}
	}

	var fin handshake.MessageFinished
	if err := fin.Unmarshal(body); err != nil {
		return nil, nil
	}

	preClientFinishedDigest, err := hs.hc.runningDigest.Sum()
	if err != nil {
		return nil, fatal(alert.InternalError, err)
	}
	expected, err := prf.VerifyDataClientFromDigest(hs.session.MasterSecret, preClientFinishedDigest, ciphersuite.HashFunc())
	if err != nil {
		return nil, fatal(alert.InternalError, err)
	}
	if !bytes.Equal(expected, fin.VerifyData) {
		return nil, fatal(alert.HandshakeFailure, nil)
	}

	hs.hc.clientFinished = &fin
	hs.handshakeLog.ClientFinished = fin.MakeLog()
	hs.hc.absorb(raw)

	flight, err := hs.buildTerminalFlight()
	if err != nil {
		return nil, fatal(alert.InternalError, err)
	}
	hs.hc.state = stateDone
	return flight, nil
}
