// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package scandium

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"net/netip"
	"testing"

	"github.com/denissytenkov/scandium/internal/cookie"
	"github.com/denissytenkov/scandium/pkg/crypto/ciphersuite"
	xelliptic "github.com/denissytenkov/scandium/pkg/crypto/elliptic"
	"github.com/denissytenkov/scandium/pkg/crypto/prf"
	"github.com/denissytenkov/scandium/pkg/crypto/signaturehash"
	"github.com/denissytenkov/scandium/pkg/protocol"
	"github.com/denissytenkov/scandium/pkg/protocol/alert"
	"github.com/denissytenkov/scandium/pkg/protocol/extension"
	"github.com/denissytenkov/scandium/pkg/protocol/handshake"
)

type fakeRecordLayer struct {
	readInstalled, writeInstalled int
}

func (f *fakeRecordLayer) InstallReadState(*Session) error  { f.readInstalled++; return nil }
func (f *fakeRecordLayer) InstallWriteState(*Session) error { f.writeInstalled++; return nil }

func frameHandshake(t *testing.T, seq uint16, msg handshake.Message) []byte {
	t.Helper()
	h := handshake.Handshake{Header: handshake.Header{MessageSequence: seq}, Message: msg}
	raw, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal handshake message: %v", err)
	}
	return raw
}

func handshakeRecord(raw []byte) Record {
	return Record{ContentType: protocol.ContentTypeHandshake, Fragment: raw}
}

func newTestHandshaker(t *testing.T, cfg *Config) (*ServerHandshaker, *fakeRecordLayer) {
	t.Helper()
	cookies, err := cookie.NewGenerator(0)
	if err != nil {
		t.Fatalf("new cookie generator: %v", err)
	}
	rl := &fakeRecordLayer{}
	hs, err := NewServerHandshaker(cfg, rl, cookies, netip.MustParseAddrPort("127.0.0.1:5684"))
	if err != nil {
		t.Fatalf("new server handshaker: %v", err)
	}
	return hs, rl
}

// sendCookielessClientHello sends the first, cookie-less ClientHello and
// returns both the cookie from the HelloVerifyRequest and the Random it
// was computed over: a conformant client resends the very same ClientHello
// fields on the second round trip, only adding the cookie (RFC 6347
// Section 4.2.1), and the cookie MAC is bound to those fields (spec.md
// Section 4.6), so tests must replay the same Random, not a fresh one.
func sendCookielessClientHello(t *testing.T, hs *ServerHandshaker, version protocol.Version, suites []uint16, extensions []extension.Extension) ([]byte, handshake.Random) {
	t.Helper()
	ch := &handshake.MessageClientHello{
		Version:            version,
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
		Extensions:         extensions,
	}
	if err := ch.Random.Populate(); err != nil {
		t.Fatalf("populate random: %v", err)
	}
	raw := frameHandshake(t, 0, ch)

	flight, err := hs.ProcessRecord(handshakeRecord(raw))
	if err != nil {
		t.Fatalf("cookieless ClientHello: %v", err)
	}
	if flight == nil || len(flight.Records) != 1 {
		t.Fatalf("expected a single HelloVerifyRequest record, got %+v", flight)
	}
	var hvr handshake.MessageHelloVerifyRequest
	if err := hvr.Unmarshal(flight.Records[0].Fragment[handshake.HeaderSize:]); err != nil {
		t.Fatalf("unmarshal HelloVerifyRequest: %v", err)
	}
	return hvr.Cookie, ch.Random
}

// completeClientHelloWithCookie sends the second ClientHello (carrying the
// cookie from the HelloVerifyRequest and the same Random as the first) and
// returns the server's first flight.
func completeClientHelloWithCookie(t *testing.T, hs *ServerHandshaker, version protocol.Version, suites []uint16, cookieVal []byte, random handshake.Random, extensions []extension.Extension) *Flight {
	t.Helper()
	ch := &handshake.MessageClientHello{
		Version:            version,
		Random:             random,
		Cookie:             cookieVal,
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
		Extensions:         extensions,
	}
	raw := frameHandshake(t, 1, ch)

	flight, err := hs.ProcessRecord(handshakeRecord(raw))
	if err != nil {
		t.Fatalf("second ClientHello: %v", err)
	}
	if flight == nil {
		t.Fatal("expected a server flight in response to a valid-cookie ClientHello")
	}
	return flight
}

func TestServerHandshakePSKHappyPath(t *testing.T) {
	const identity = "dtls-device-1"
	key := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	cfg := &Config{
		PSK: func(id string) ([]byte, bool) {
			if id != identity {
				return nil, false
			}
			return key, true
		},
	}
	hs, rl := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_PSK_WITH_AES_128_CCM_8)}
	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, nil)

	flight := completeClientHelloWithCookie(t, hs, protocol.Version1_2, suites, cookieVal, random, nil)
	if hs.Session().CipherSuite == nil || hs.Session().CipherSuite.ID != ciphersuite.TLS_PSK_WITH_AES_128_CCM_8 {
		t.Fatalf("expected PSK suite negotiated, got %+v", hs.Session().CipherSuite)
	}
	if len(flight.Records) != 2 {
		t.Fatalf("expected ServerHello+ServerHelloDone (no certificate for PSK), got %d records", len(flight.Records))
	}

	cke := &handshake.MessageClientKeyExchange{IdentityHint: []byte(identity)}
	ckeRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cke)
	if flight, err := hs.ProcessRecord(handshakeRecord(ckeRaw)); err != nil || flight != nil {
		t.Fatalf("ClientKeyExchange: flight=%+v err=%v", flight, err)
	}
	if len(hs.session.MasterSecret) == 0 {
		t.Fatal("expected master secret to be derived after ClientKeyExchange")
	}

	ccs := Record{ContentType: protocol.ContentTypeChangeCipherSpec, Fragment: []byte{0x01}}
	if flight, err := hs.ProcessRecord(ccs); err != nil || flight != nil {
		t.Fatalf("ChangeCipherSpec: flight=%+v err=%v", flight, err)
	}
	if rl.readInstalled != 1 {
		t.Fatalf("expected InstallReadState to be called once, got %d", rl.readInstalled)
	}

	verifyData, err := computeClientVerifyData(hs)
	if err != nil {
		t.Fatalf("compute verify_data: %v", err)
	}
	finished := &handshake.MessageFinished{VerifyData: verifyData}
	finRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, finished)

	terminal, err := hs.ProcessRecord(handshakeRecord(finRaw))
	if err != nil {
		t.Fatalf("Finished: %v", err)
	}
	if terminal == nil || len(terminal.Records) != 2 {
		t.Fatalf("expected a two-record terminal flight, got %+v", terminal)
	}
	if !hs.Session().Active {
		t.Fatal("expected session to become active after the terminal flight")
	}
	if rl.writeInstalled != 1 {
		t.Fatalf("expected InstallWriteState to be called once, got %d", rl.writeInstalled)
	}

	// The running digest and the raw transcript buffer must agree at every
	// point; the terminal flight is the last chance to check.
	digest, err := hs.hc.runningDigest.Sum()
	if err != nil {
		t.Fatalf("sum running digest: %v", err)
	}
	rehashed := sha256.Sum256(hs.hc.transcriptBytes)
	if !bytes.Equal(digest, rehashed[:]) {
		t.Fatal("running digest and transcript byte buffer disagree")
	}

	// A client that never saw our terminal flight retransmits its whole
	// last flight: the repeated CCS is swallowed without touching epochs,
	// and the repeated Finished re-emits the exact same flight, not a
	// recomputed one.
	if flight, err := hs.ProcessRecord(ccs); err != nil || flight != nil {
		t.Fatalf("retransmitted ChangeCipherSpec after completion: flight=%+v err=%v", flight, err)
	}
	if rl.readInstalled != 1 {
		t.Fatalf("retransmitted ChangeCipherSpec must not re-install read state, got %d installs", rl.readInstalled)
	}
	again, err := hs.ProcessRecord(handshakeRecord(finRaw))
	if err != nil {
		t.Fatalf("duplicate Finished: %v", err)
	}
	if !bytes.Equal(again.Records[1].Fragment, terminal.Records[1].Fragment) {
		t.Fatal("expected the retransmitted terminal flight to be byte-identical")
	}
	if rl.writeInstalled != 1 {
		t.Fatalf("duplicate Finished must not re-install write state, got %d installs", rl.writeInstalled)
	}
}

// computeClientVerifyData recomputes the verify_data a conformant client
// would send, from the transcript the handshaker has accumulated so far
// (white-box: this test lives in the same package as handshakeContext).
func computeClientVerifyData(hs *ServerHandshaker) ([]byte, error) {
	digest, err := hs.hc.runningDigest.Sum()
	if err != nil {
		return nil, err
	}
	return prf.VerifyDataClientFromDigest(hs.session.MasterSecret, digest, ciphersuite.HashFunc())
}

func TestServerHandshakeECDHENoClientAuth(t *testing.T) {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	serverPub, err := x509.MarshalPKIXPublicKey(&serverKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal server public key: %v", err)
	}

	cfg := &Config{
		Certificates: []Certificate{{RawPublicKey: serverPub, PrivateKey: serverKey}},
	}
	hs, rl := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)}
	extensions := []extension.Extension{
		&extension.SupportedEllipticCurves{EllipticCurves: []xelliptic.CurveType{xelliptic.X25519Type}},
		&extension.ServerCertificateType{},
	}
	extensions[1].(*extension.ServerCertificateType).CertificateTypes = []extension.CertificateType{extension.RawPublicKeyCertificateType}

	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, extensions)
	flight := completeClientHelloWithCookie(t, hs, protocol.Version1_2, suites, cookieVal, random, extensions)

	if !hs.Session().SendRawPublicKey {
		t.Fatal("expected raw public key certificate type to be negotiated")
	}
	if len(flight.Records) != 4 {
		t.Fatalf("expected ServerHello, Certificate, ServerKeyExchange, ServerHelloDone; got %d records", len(flight.Records))
	}

	clientPublic, _, err := xelliptic.X25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client ECDHE keypair: %v", err)
	}
	cke := &handshake.MessageClientKeyExchange{PublicKey: clientPublic}
	ckeRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cke)
	if flight, err := hs.ProcessRecord(handshakeRecord(ckeRaw)); err != nil || flight != nil {
		t.Fatalf("ClientKeyExchange: flight=%+v err=%v", flight, err)
	}
	if len(hs.session.MasterSecret) == 0 {
		t.Fatal("expected master secret to be derived after ClientKeyExchange")
	}

	ccs := Record{ContentType: protocol.ContentTypeChangeCipherSpec, Fragment: []byte{0x01}}
	if _, err := hs.ProcessRecord(ccs); err != nil {
		t.Fatalf("ChangeCipherSpec: %v", err)
	}
	if rl.readInstalled != 1 {
		t.Fatalf("expected one InstallReadState call, got %d", rl.readInstalled)
	}

	verifyData, err := computeClientVerifyData(hs)
	if err != nil {
		t.Fatalf("compute verify_data: %v", err)
	}
	finished := &handshake.MessageFinished{VerifyData: verifyData}
	finRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, finished)

	terminal, err := hs.ProcessRecord(handshakeRecord(finRaw))
	if err != nil {
		t.Fatalf("Finished: %v", err)
	}
	if !hs.Session().Active {
		t.Fatal("expected session to become active")
	}
	if len(terminal.Records) != 2 {
		t.Fatalf("expected a two-record terminal flight, got %d", len(terminal.Records))
	}
}

func TestServerHandshakeECDHEWithClientAuth(t *testing.T) {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	serverPub, err := x509.MarshalPKIXPublicKey(&serverKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal server public key: %v", err)
	}
	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientPub, err := x509.MarshalPKIXPublicKey(&clientKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal client public key: %v", err)
	}

	cfg := &Config{
		ClientAuthenticationRequired: true,
		Certificates:                 []Certificate{{RawPublicKey: serverPub, PrivateKey: serverKey}},
	}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)}
	extensions := []extension.Extension{
		&extension.SupportedEllipticCurves{EllipticCurves: []xelliptic.CurveType{xelliptic.X25519Type}},
		&extension.ServerCertificateType{},
		&extension.ClientCertificateType{},
	}
	extensions[1].(*extension.ServerCertificateType).CertificateTypes = []extension.CertificateType{extension.RawPublicKeyCertificateType}
	extensions[2].(*extension.ClientCertificateType).CertificateTypes = []extension.CertificateType{extension.RawPublicKeyCertificateType}

	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, extensions)
	flight := completeClientHelloWithCookie(t, hs, protocol.Version1_2, suites, cookieVal, random, extensions)

	if len(flight.Records) != 5 {
		t.Fatalf("expected ServerHello, Certificate, ServerKeyExchange, CertificateRequest, ServerHelloDone; got %d", len(flight.Records))
	}

	clientPublicECDHE, clientPrivateECDHE, err := xelliptic.X25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client ECDHE keypair: %v", err)
	}
	_ = clientPrivateECDHE

	certMsg := &handshake.MessageCertificate{Certificate: [][]byte{clientPub}}
	certRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, certMsg)
	if flight, err := hs.ProcessRecord(handshakeRecord(certRaw)); err != nil || flight != nil {
		t.Fatalf("Certificate: flight=%+v err=%v", flight, err)
	}

	cke := &handshake.MessageClientKeyExchange{PublicKey: clientPublicECDHE}
	ckeRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cke)
	if flight, err := hs.ProcessRecord(handshakeRecord(ckeRaw)); err != nil || flight != nil {
		t.Fatalf("ClientKeyExchange: flight=%+v err=%v", flight, err)
	}

	signature, err := signECDSA(clientKey, hs.hc.transcriptBytes)
	if err != nil {
		t.Fatalf("sign CertificateVerify: %v", err)
	}
	cv := &handshake.MessageCertificateVerify{
		HashAlgorithm:      signaturehash.Default.Hash,
		SignatureAlgorithm: signaturehash.Default.Signature,
		Signature:          signature,
	}
	cvRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cv)
	if flight, err := hs.ProcessRecord(handshakeRecord(cvRaw)); err != nil || flight != nil {
		t.Fatalf("CertificateVerify: flight=%+v err=%v", flight, err)
	}

	ccs := Record{ContentType: protocol.ContentTypeChangeCipherSpec, Fragment: []byte{0x01}}
	if _, err := hs.ProcessRecord(ccs); err != nil {
		t.Fatalf("ChangeCipherSpec: %v", err)
	}

	verifyData, err := computeClientVerifyData(hs)
	if err != nil {
		t.Fatalf("compute verify_data: %v", err)
	}
	finished := &handshake.MessageFinished{VerifyData: verifyData}
	finRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, finished)

	terminal, err := hs.ProcessRecord(handshakeRecord(finRaw))
	if err != nil {
		t.Fatalf("Finished: %v", err)
	}
	if !hs.Session().Active {
		t.Fatal("expected session to become active")
	}
	if len(terminal.Records) != 2 {
		t.Fatalf("expected terminal flight with 2 records, got %d", len(terminal.Records))
	}
}

func TestServerHandshakeMissingClientAuthIsFatal(t *testing.T) {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	serverPub, err := x509.MarshalPKIXPublicKey(&serverKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal server public key: %v", err)
	}

	cfg := &Config{
		ClientAuthenticationRequired: true,
		Certificates:                 []Certificate{{RawPublicKey: serverPub, PrivateKey: serverKey}},
	}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)}
	extensions := []extension.Extension{
		&extension.SupportedEllipticCurves{EllipticCurves: []xelliptic.CurveType{xelliptic.X25519Type}},
		&extension.ServerCertificateType{},
	}
	extensions[1].(*extension.ServerCertificateType).CertificateTypes = []extension.CertificateType{extension.RawPublicKeyCertificateType}

	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, extensions)
	completeClientHelloWithCookie(t, hs, protocol.Version1_2, suites, cookieVal, random, extensions)

	clientPublicECDHE, _, err := xelliptic.X25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client ECDHE keypair: %v", err)
	}
	cke := &handshake.MessageClientKeyExchange{PublicKey: clientPublicECDHE}
	ckeRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cke)
	if _, err := hs.ProcessRecord(handshakeRecord(ckeRaw)); err != nil {
		t.Fatalf("ClientKeyExchange: %v", err)
	}

	ccs := Record{ContentType: protocol.ContentTypeChangeCipherSpec, Fragment: []byte{0x01}}
	if _, err := hs.ProcessRecord(ccs); err != nil {
		t.Fatalf("ChangeCipherSpec: %v", err)
	}

	// The client skipped Certificate/CertificateVerify entirely. A
	// Finished here must be rejected before verify_data is even checked.
	finished := &handshake.MessageFinished{VerifyData: make([]byte, 12)}
	finRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, finished)

	_, err = hs.ProcessRecord(handshakeRecord(finRaw))
	var hErr *HandshakeError
	if err == nil {
		t.Fatal("expected a fatal handshake error for missing client authentication")
	} else if !asHandshakeError(err, &hErr) || hErr.Alert.Description != alert.HandshakeFailure {
		t.Fatalf("expected HANDSHAKE_FAILURE, got %v", err)
	}
}

func asHandshakeError(err error, target **HandshakeError) bool {
	h, ok := err.(*HandshakeError)
	if ok {
		*target = h
	}
	return ok
}

func TestServerHandshakeRejectsOldVersion(t *testing.T) {
	cfg := &Config{PSK: func(string) ([]byte, bool) { return nil, false }}
	hs, _ := newTestHandshaker(t, cfg)

	// The client consistently offers DTLS 1.0 across both round trips (the
	// cookie is bound to version.major/minor; a client that changed version
	// between round trips would just earn another HelloVerifyRequest, not a
	// fatal alert, per spec.md Section 4.6).
	suites := []uint16{uint16(ciphersuite.TLS_PSK_WITH_AES_128_CCM_8)}
	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_0, suites, nil)

	ch := &handshake.MessageClientHello{
		Version:            protocol.Version1_0,
		Random:             random,
		Cookie:             cookieVal,
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
	}
	raw := frameHandshake(t, 1, ch)

	_, err := hs.ProcessRecord(handshakeRecord(raw))
	var hErr *HandshakeError
	if err == nil {
		t.Fatal("expected a fatal handshake error for an unsupported version")
	} else if !asHandshakeError(err, &hErr) || hErr.Alert.Description != alert.ProtocolVersion {
		t.Fatalf("expected PROTOCOL_VERSION, got %v", err)
	}
}

func TestServerHandshakeMissingCurveExtensionIsFatal(t *testing.T) {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	serverPub, err := x509.MarshalPKIXPublicKey(&serverKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal server public key: %v", err)
	}
	cfg := &Config{Certificates: []Certificate{{RawPublicKey: serverPub, PrivateKey: serverKey}}}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)}
	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, nil)

	ch := &handshake.MessageClientHello{
		Version:            protocol.Version1_2,
		Random:             random,
		Cookie:             cookieVal,
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
	}
	raw := frameHandshake(t, 1, ch)

	_, err = hs.ProcessRecord(handshakeRecord(raw))
	var hErr *HandshakeError
	if err == nil {
		t.Fatal("expected a fatal handshake error for a missing supported_elliptic_curves extension")
	} else if !asHandshakeError(err, &hErr) || hErr.Alert.Description != alert.HandshakeFailure {
		t.Fatalf("expected HANDSHAKE_FAILURE, got %v", err)
	}
}

func TestServerHandshakeInvalidCookieEarnsAnotherHelloVerify(t *testing.T) {
	cfg := &Config{PSK: func(string) ([]byte, bool) { return []byte{0x01}, true }}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_PSK_WITH_AES_128_CCM_8)}
	_, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, nil)

	ch := &handshake.MessageClientHello{
		Version:            protocol.Version1_2,
		Random:             random,
		Cookie:             bytes.Repeat([]byte{0xab}, 32),
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
	}
	raw := frameHandshake(t, 1, ch)

	flight, err := hs.ProcessRecord(handshakeRecord(raw))
	if err != nil {
		t.Fatalf("a mismatched cookie must not be fatal, got %v", err)
	}
	if flight == nil || len(flight.Records) != 1 {
		t.Fatalf("expected exactly one HelloVerifyRequest record, got %+v", flight)
	}
	var hvr handshake.MessageHelloVerifyRequest
	if err := hvr.Unmarshal(flight.Records[0].Fragment[handshake.HeaderSize:]); err != nil {
		t.Fatalf("expected the reply to be a HelloVerifyRequest: %v", err)
	}
	if hs.Session().CipherSuite != nil {
		t.Fatal("a mismatched cookie must not advance negotiation")
	}
}

func TestServerHandshakeUnknownPSKIdentityIsFatal(t *testing.T) {
	// A wildcard key exists, but the identity lookup itself fails: spec.md
	// Section 8 requires HANDSHAKE_FAILURE regardless.
	cfg := &Config{PSK: func(id string) ([]byte, bool) {
		if id == "known-device" {
			return []byte{0x01, 0x02}, true
		}
		return nil, false
	}}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_PSK_WITH_AES_128_CCM_8)}
	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, nil)
	completeClientHelloWithCookie(t, hs, protocol.Version1_2, suites, cookieVal, random, nil)

	cke := &handshake.MessageClientKeyExchange{IdentityHint: []byte("stranger")}
	ckeRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cke)

	_, err := hs.ProcessRecord(handshakeRecord(ckeRaw))
	var hErr *HandshakeError
	if err == nil {
		t.Fatal("expected a fatal handshake error for an unknown PSK identity")
	} else if !asHandshakeError(err, &hErr) || hErr.Alert.Description != alert.HandshakeFailure {
		t.Fatalf("expected HANDSHAKE_FAILURE, got %v", err)
	}
}

func TestServerHandshakeQueuesOutOfOrderMessages(t *testing.T) {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	serverPub, err := x509.MarshalPKIXPublicKey(&serverKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal server public key: %v", err)
	}
	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientPub, err := x509.MarshalPKIXPublicKey(&clientKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal client public key: %v", err)
	}

	cfg := &Config{
		ClientAuthenticationRequired: true,
		Certificates:                 []Certificate{{RawPublicKey: serverPub, PrivateKey: serverKey}},
	}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)}
	extensions := []extension.Extension{
		&extension.SupportedEllipticCurves{EllipticCurves: []xelliptic.CurveType{xelliptic.X25519Type}},
		&extension.ServerCertificateType{},
		&extension.ClientCertificateType{},
	}
	extensions[1].(*extension.ServerCertificateType).CertificateTypes = []extension.CertificateType{extension.RawPublicKeyCertificateType}
	extensions[2].(*extension.ClientCertificateType).CertificateTypes = []extension.CertificateType{extension.RawPublicKeyCertificateType}

	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, extensions)
	completeClientHelloWithCookie(t, hs, protocol.Version1_2, suites, cookieVal, random, extensions)

	clientPublicECDHE, _, err := xelliptic.X25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client ECDHE keypair: %v", err)
	}

	certSeq := hs.hc.nextClientMessageSeq
	cke := &handshake.MessageClientKeyExchange{PublicKey: clientPublicECDHE}
	ckeRaw := frameHandshake(t, certSeq+1, cke)

	// The ClientKeyExchange arrives ahead of the Certificate it must
	// follow: it is buffered, not dispatched.
	if flight, err := hs.ProcessRecord(handshakeRecord(ckeRaw)); err != nil || flight != nil {
		t.Fatalf("early ClientKeyExchange must be buffered silently: flight=%+v err=%v", flight, err)
	}
	if len(hs.session.MasterSecret) != 0 {
		t.Fatal("a buffered ClientKeyExchange must not derive key material yet")
	}

	certMsg := &handshake.MessageCertificate{Certificate: [][]byte{clientPub}}
	certRaw := frameHandshake(t, certSeq, certMsg)
	if flight, err := hs.ProcessRecord(handshakeRecord(certRaw)); err != nil || flight != nil {
		t.Fatalf("Certificate: flight=%+v err=%v", flight, err)
	}

	// Draining the queue must have replayed the ClientKeyExchange.
	if len(hs.session.MasterSecret) == 0 {
		t.Fatal("expected the queued ClientKeyExchange to be consumed after the Certificate arrived")
	}
}

func TestServerHandshakeReassemblesFragmentedClientHello(t *testing.T) {
	const identity = "frag-device"
	cfg := &Config{PSK: func(id string) ([]byte, bool) {
		if id != identity {
			return nil, false
		}
		return []byte{0x0a, 0x0b}, true
	}}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_PSK_WITH_AES_128_CCM_8)}
	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, nil)

	ch := &handshake.MessageClientHello{
		Version:            protocol.Version1_2,
		Random:             random,
		Cookie:             cookieVal,
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
	}
	body, err := ch.Marshal()
	if err != nil {
		t.Fatalf("marshal ClientHello: %v", err)
	}
	fragments, err := handshake.Fragment(handshake.TypeClientHello, 1, body, handshake.HeaderSize+20)
	if err != nil {
		t.Fatalf("fragment ClientHello: %v", err)
	}
	if len(fragments) < 2 {
		t.Fatalf("expected the ClientHello to split across fragments, got %d", len(fragments))
	}

	var flight *Flight
	for _, frag := range fragments {
		flight, err = hs.ProcessRecord(handshakeRecord(frag))
		if err != nil {
			t.Fatalf("fragmented ClientHello: %v", err)
		}
	}
	if flight == nil {
		t.Fatal("expected a server flight once the final fragment completed the ClientHello")
	}

	// The transcript must hold the reassembled message framed as a single
	// unfragmented record, not the individual wire fragments.
	hdr := handshake.Header{
		Type:            handshake.TypeClientHello,
		Length:          uint32(len(body)),
		MessageSequence: 1,
		FragmentOffset:  0,
		FragmentLength:  uint32(len(body)),
	}
	hdrRaw, err := hdr.Marshal()
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	want := append(hdrRaw, body...)
	if !bytes.HasPrefix(hs.hc.transcriptBytes, want) {
		t.Fatal("expected the transcript to start with the reassembled, reframed ClientHello")
	}
}

func TestServerHandshakeCloseNotifyTearsDown(t *testing.T) {
	cfg := &Config{PSK: func(string) ([]byte, bool) { return []byte{0x01}, true }}
	hs, _ := newTestHandshaker(t, cfg)

	a := alert.Alert{Level: alert.Warning, Description: alert.CloseNotify}
	raw, err := a.Marshal()
	if err != nil {
		t.Fatalf("marshal alert: %v", err)
	}

	_, err = hs.ProcessRecord(Record{ContentType: protocol.ContentTypeAlert, Fragment: raw})
	var hErr *HandshakeError
	if err == nil {
		t.Fatal("expected close_notify to tear the handshake down")
	} else if !asHandshakeError(err, &hErr) || hErr.Alert.Description != alert.CloseNotify {
		t.Fatalf("expected the teardown error to carry close_notify, got %v", err)
	}
}

func TestServerHandshakeFragmentsOversizedCertificate(t *testing.T) {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), crand.Reader)
	if err != nil {
		t.Fatalf("generate server key: %v", err)
	}
	leaf := selfSignedECDSACert(t, serverKey, "dtls-server")

	// An MTU well under the X.509 leaf's size forces the Certificate
	// message across several wire fragments.
	cfg := &Config{
		Certificates: []Certificate{{Chain: [][]byte{leaf}, PrivateKey: serverKey}},
		MTU:          256,
	}
	hs, _ := newTestHandshaker(t, cfg)

	suites := []uint16{uint16(ciphersuite.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8)}
	extensions := []extension.Extension{
		&extension.SupportedEllipticCurves{EllipticCurves: []xelliptic.CurveType{xelliptic.X25519Type}},
	}
	cookieVal, random := sendCookielessClientHello(t, hs, protocol.Version1_2, suites, extensions)

	ch := &handshake.MessageClientHello{
		Version:            protocol.Version1_2,
		Random:             random,
		Cookie:             cookieVal,
		CipherSuiteIDs:     suites,
		CompressionMethods: []protocol.CompressionMethodID{protocol.CompressionMethodNull},
		Extensions:         extensions,
	}
	chRaw := frameHandshake(t, 1, ch)
	flight, err := hs.ProcessRecord(handshakeRecord(chRaw))
	if err != nil {
		t.Fatalf("second ClientHello: %v", err)
	}
	if flight == nil {
		t.Fatal("expected a server flight in response to a valid-cookie ClientHello")
	}

	// Reassemble the server flight the way a conformant client would,
	// reframing each completed message as a single fragment before
	// hashing it: the transcript both sides MAC over must be identical no
	// matter how the Certificate was cut up on the wire.
	clientTranscript := append([]byte{}, chRaw...)
	reassembly := handshake.NewFragmentBuffer()
	var certFragments int
	var serverHello handshake.MessageServerHello
	var ske handshake.MessageServerKeyExchange
	for _, rec := range flight.Records {
		var hdr handshake.Header
		if err := hdr.Unmarshal(rec.Fragment); err != nil {
			t.Fatalf("unmarshal handshake header: %v", err)
		}
		if hdr.Type == handshake.TypeCertificate {
			certFragments++
		}
		body := rec.Fragment[handshake.HeaderSize : handshake.HeaderSize+int(hdr.FragmentLength)]
		msgType, full, ok := reassembly.Push(hdr, body)
		if !ok {
			continue
		}
		raw, err := reframe(handshake.Header{Type: msgType, MessageSequence: hdr.MessageSequence}, full)
		if err != nil {
			t.Fatalf("reframe reassembled message: %v", err)
		}
		clientTranscript = append(clientTranscript, raw...)
		switch msgType {
		case handshake.TypeServerHello:
			if err := serverHello.Unmarshal(full); err != nil {
				t.Fatalf("unmarshal ServerHello: %v", err)
			}
		case handshake.TypeServerKeyExchange:
			if err := ske.Unmarshal(full); err != nil {
				t.Fatalf("unmarshal ServerKeyExchange: %v", err)
			}
		}
	}
	if certFragments < 2 {
		t.Fatalf("expected the Certificate to split across at least two fragments, got %d", certFragments)
	}

	clientPublic, clientPrivate, err := xelliptic.X25519.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate client ECDHE keypair: %v", err)
	}
	shared, err := xelliptic.X25519.SharedSecret(ske.PublicKey, clientPrivate)
	if err != nil {
		t.Fatalf("client shared secret: %v", err)
	}
	clientRandom := random.MarshalFixed()
	serverRandom := serverHello.Random.MarshalFixed()
	master, err := prf.MasterSecret(shared, clientRandom[:], serverRandom[:], ciphersuite.HashFunc())
	if err != nil {
		t.Fatalf("client master secret: %v", err)
	}

	cke := &handshake.MessageClientKeyExchange{PublicKey: clientPublic}
	ckeRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, cke)
	if flight, err := hs.ProcessRecord(handshakeRecord(ckeRaw)); err != nil || flight != nil {
		t.Fatalf("ClientKeyExchange: flight=%+v err=%v", flight, err)
	}
	clientTranscript = append(clientTranscript, ckeRaw...)

	if !bytes.Equal(master, hs.session.MasterSecret) {
		t.Fatal("client and server disagree on the master secret")
	}

	ccs := Record{ContentType: protocol.ContentTypeChangeCipherSpec, Fragment: []byte{0x01}}
	if _, err := hs.ProcessRecord(ccs); err != nil {
		t.Fatalf("ChangeCipherSpec: %v", err)
	}

	verifyData, err := prf.VerifyDataClient(master, clientTranscript, ciphersuite.HashFunc())
	if err != nil {
		t.Fatalf("client verify_data: %v", err)
	}
	finished := &handshake.MessageFinished{VerifyData: verifyData}
	finRaw := frameHandshake(t, hs.hc.nextClientMessageSeq, finished)

	terminal, err := hs.ProcessRecord(handshakeRecord(finRaw))
	if err != nil {
		t.Fatalf("server rejected a Finished computed over the client-side reassembled transcript: %v", err)
	}
	if terminal == nil || len(terminal.Records) != 2 {
		t.Fatalf("expected a two-record terminal flight, got %+v", terminal)
	}
	clientTranscript = append(clientTranscript, finRaw...)

	var finHdr handshake.Header
	if err := finHdr.Unmarshal(terminal.Records[1].Fragment); err != nil {
		t.Fatalf("unmarshal server Finished header: %v", err)
	}
	var srvFin handshake.MessageFinished
	if err := srvFin.Unmarshal(terminal.Records[1].Fragment[handshake.HeaderSize : handshake.HeaderSize+int(finHdr.FragmentLength)]); err != nil {
		t.Fatalf("unmarshal server Finished: %v", err)
	}
	want, err := prf.VerifyDataServer(master, clientTranscript, ciphersuite.HashFunc())
	if err != nil {
		t.Fatalf("expected server verify_data: %v", err)
	}
	if !bytes.Equal(srvFin.VerifyData, want) {
		t.Fatal("server Finished does not verify against the client-side transcript")
	}
}
