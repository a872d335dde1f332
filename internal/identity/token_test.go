package identity

import (
	"errors"
	"testing"
	"time"
)

func TestToken_MintVerify(t *testing.T) {
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef")

	token, expiresAt := issuer.Mint("ref-abc")
	if token == "" {
		t.Fatal("empty token")
	}
	if remaining := time.Until(expiresAt); remaining <= 0 || remaining > TokenTTL {
		t.Errorf("expiry out of bounds: %v", expiresAt)
	}
	if err := issuer.Verify(token, "ref-abc"); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestToken_WrongReference(t *testing.T) {
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef")

	token, _ := issuer.Mint("ref-abc")
	if err := issuer.Verify(token, "ref-other"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestToken_WrongSecret(t *testing.T) {
	a := NewTokenIssuer("0123456789abcdef0123456789abcdef")
	b := NewTokenIssuer("ffffffffffffffffffffffffffffffff")

	token, _ := a.Mint("ref-abc")
	if err := b.Verify(token, "ref-abc"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestToken_Expired(t *testing.T) {
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef")
	issuer.ttl = -time.Minute

	token, _ := issuer.Mint("ref-abc")
	if err := issuer.Verify(token, "ref-abc"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestToken_Malformed(t *testing.T) {
	issuer := NewTokenIssuer("0123456789abcdef0123456789abcdef")

	for _, token := range []string{"", "junk", "a.b", "a.b.c.d", "!!!.123.sig"} {
		if err := issuer.Verify(token, "ref-abc"); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("token %q: expected ErrTokenInvalid, got %v", token, err)
		}
	}
}
