// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ciphersuite

import "testing"

func TestNegotiatePrefersFirstSupportedOffer(t *testing.T) {
	s, ok := Negotiate([]ID{SSL_NULL_WITH_NULL_NULL, TLS_PSK_WITH_AES_128_CCM_8, TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8})
	if !ok {
		t.Fatal("expected a match")
	}
	if s.ID != TLS_PSK_WITH_AES_128_CCM_8 {
		t.Errorf("got %#x, want %#x", s.ID, TLS_PSK_WITH_AES_128_CCM_8)
	}
}

func TestNegotiateRejectsNullOnlyOffer(t *testing.T) {
	if _, ok := Negotiate([]ID{SSL_NULL_WITH_NULL_NULL}); ok {
		t.Fatal("SSL_NULL_WITH_NULL_NULL must never be negotiable")
	}
}

func TestNegotiateNoCommonSuite(t *testing.T) {
	if _, ok := Negotiate([]ID{0xffff}); ok {
		t.Fatal("expected no match for an unsupported offer")
	}
}

func TestByIDKnowsNullSuite(t *testing.T) {
	if _, ok := ByID(SSL_NULL_WITH_NULL_NULL); !ok {
		t.Fatal("ByID should recognize SSL_NULL_WITH_NULL_NULL even though Negotiate never selects it")
	}
}
