// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package cookie implements the stateless HMAC cookie used by
// HelloVerifyRequest to make the initial handshake round trip cheap to
// verify and expensive to spoof (RFC 6347 Section 4.2.1).
package cookie

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"net/netip"
	"sync"
	"time"
)

// Length is the size in bytes of a generated cookie.
const Length = sha256.Size

// Generator computes and verifies cookies bound to a peer's address and a
// copy of its ClientHello. It rotates its HMAC secret on a fixed interval
// so that a cookie stops verifying once its secret is two rotations old, bounding how long
// a captured cookie remains replayable without forcing every in-flight
// handshake to restart at once: Verify accepts both the current and the
// immediately previous secret.
type Generator struct {
	interval time.Duration

	mu         sync.Mutex
	secret     [32]byte
	prevSecret [32]byte
	haveSecond bool
	rotatedAt  time.Time
	now        func() time.Time
}

// NewGenerator returns a Generator that rotates its secret every interval.
// A zero interval disables rotation: the secret is generated once and used
// for the lifetime of the Generator.
func NewGenerator(interval time.Duration) (*Generator, error) {
	g := &Generator{interval: interval, now: time.Now}
	if _, err := rand.Read(g.secret[:]); err != nil {
		return nil, err
	}
	g.rotatedAt = g.now()
	return g, nil
}

func (g *Generator) maybeRotate() {
	if g.interval <= 0 {
		return
	}
	now := g.now()
	if now.Sub(g.rotatedAt) < g.interval {
		return
	}
	g.prevSecret = g.secret
	g.haveSecond = true
	if _, err := rand.Read(g.secret[:]); err != nil {
		// Secret generation only fails if the OS CSPRNG is broken, in which
		// case keeping the old secret a while longer is the safer failure
		// mode over running without one.
		g.secret = g.prevSecret
		return
	}
	g.rotatedAt = now
}

func mac(secret [32]byte, addr netip.AddrPort, material []byte) []byte {
	h := hmac.New(sha256.New, secret[:])
	ip := addr.Addr().As16()
	h.Write(ip[:])
	var port [2]byte
	port[0] = byte(addr.Port() >> 8)
	port[1] = byte(addr.Port())
	h.Write(port[:])
	h.Write(material)
	return h.Sum(nil)
}

// Generate returns the cookie for a peer address and ClientHello material:
// a caller-supplied canonical encoding of the ClientHello's stable fields
// (version, client_random, session_id, cipher_suites, compression_methods),
// excluding the Cookie field itself. The cookie covers enough of the
// client's first message to make it expensive to forge at scale, while
// staying reproducible across both the cookie-less and the cookie-bearing
// ClientHello a client sends.
func (g *Generator) Generate(addr netip.AddrPort, material []byte) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeRotate()
	return mac(g.secret, addr, material)
}

// Verify reports whether cookie matches what Generate would have produced
// for addr and material, under either the current or the immediately
// preceding secret.
func (g *Generator) Verify(addr netip.AddrPort, material, cookie []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeRotate()

	if subtle.ConstantTimeCompare(mac(g.secret, addr, material), cookie) == 1 {
		return true
	}
	if g.haveSecond && subtle.ConstantTimeCompare(mac(g.prevSecret, addr, material), cookie) == 1 {
		return true
	}
	return false
}
