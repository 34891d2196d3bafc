// Package token holds the per-client token triples issued by the identity
// provider and the VW Group token service. Tokens are treated as opaque beyond
// the claims needed for routing and expiry; signature verification is a separate,
// best-effort concern of the session.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes the three tokens issued per API client.
type Kind int

const (
	KindID Kind = iota
	KindAccess
	KindRefresh
)

var kindNames = map[Kind]string{
	KindID:      "id",
	KindAccess:  "access",
	KindRefresh: "refresh",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Token is an issued credential. Immutable: a refresh replaces the whole value,
// nothing mutates a Token in place.
type Token struct {
	Kind      Kind
	Value     string
	Audience  string
	Subject   string
	ExpiresAt time.Time
}

// Decode extracts the expiry, audience, and subject claims from raw without
// verifying its signature. The returned Token always carries raw as its Value;
// when raw cannot be parsed the Token has a zero expiry and is therefore never
// valid.
func Decode(kind Kind, raw string) (Token, error) {
	t := Token{Kind: kind, Value: raw}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return t, err
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		t.ExpiresAt = exp.Time
	}
	if aud, err := parsed.Claims.GetAudience(); err == nil && len(aud) > 0 {
		t.Audience = aud[0]
	}
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		t.Subject = sub
	}
	return t, nil
}

// ValidAt reports whether the token's expiry lies after ref. Tokens without a
// decoded expiry are never valid.
func (t Token) ValidAt(ref time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.After(ref)
}

// Valid reports whether the token is usable right now.
func (t Token) Valid() bool {
	return t.ValidAt(time.Now())
}

// Set is the {id, access, refresh} triple held per named API client.
type Set struct {
	ID      Token
	Access  Token
	Refresh Token
}

// Complete reports whether the set can sustain a session: an access token to
// present and a refresh token to renew it with. The id token is absent from
// VW Group grants, so it does not count towards completeness.
func (s Set) Complete() bool {
	return s.Access.Value != "" && s.Refresh.Value != ""
}

// Token returns the member of the given kind.
func (s Set) Token(k Kind) Token {
	switch k {
	case KindID:
		return s.ID
	case KindAccess:
		return s.Access
	case KindRefresh:
		return s.Refresh
	}
	return Token{}
}

func (s *Set) put(t Token) {
	switch t.Kind {
	case KindID:
		s.ID = t
	case KindAccess:
		s.Access = t
	case KindRefresh:
		s.Refresh = t
	}
}
