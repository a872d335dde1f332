package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenTTL is how long a minted security token stays valid. Long enough for
// the client to resubmit the payment, short enough that a leaked token is
// useless soon after.
const TokenTTL = 10 * time.Minute

var (
	ErrTokenInvalid = errors.New("security token invalid")
	ErrTokenExpired = errors.New("security token expired")
)

// TokenIssuer mints and verifies HMAC-signed security tokens bound to a
// transaction reference. Token format: base64url(reference).expiryUnix.sig
// where sig = HMAC-SHA256(secret, reference|expiryUnix).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer with the given signing secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: TokenTTL}
}

// Mint signs a token bound to reference, valid for the issuer's TTL.
func (i *TokenIssuer) Mint(reference string) (token string, expiresAt time.Time) {
	expiresAt = time.Now().Add(i.ttl).UTC()
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	ref := base64.RawURLEncoding.EncodeToString([]byte(reference))
	return ref + "." + expiry + "." + i.sign(reference, expiry), expiresAt
}

// Verify checks that token is well formed, unexpired, correctly signed, and
// bound to the given reference.
func (i *TokenIssuer) Verify(token, reference string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrTokenInvalid
	}

	refBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || string(refBytes) != reference {
		return ErrTokenInvalid
	}

	expected := i.sign(reference, parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return ErrTokenInvalid
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}
	if time.Now().Unix() > expiry {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, time.Unix(expiry, 0).UTC().Format(time.RFC3339))
	}
	return nil
}

func (i *TokenIssuer) sign(reference, expiry string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(reference))
	mac.Write([]byte("|"))
	mac.Write([]byte(expiry))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
