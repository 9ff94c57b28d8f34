package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	scope_errors "scope-chat/pkg/errors"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("s3cret")
	token, err := v.Issue(42, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := v.ParseAccessToken(token)
	if err != nil || id != 42 {
		t.Fatalf("ParseAccessToken = %d, %v", id, err)
	}
}

func TestParseRejects(t *testing.T) {
	v := NewVerifier("s3cret")

	expired, _ := v.Issue(1, -time.Minute)
	wrongKey, _ := NewVerifier("other").Issue(1, time.Minute)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   expired,
		"wrong key": wrongKey,
		"alg none":  noneAlg,
	} {
		if _, err := v.ParseAccessToken(tok); !errors.Is(err, scope_errors.ErrUnauthorized) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}

func TestParseFallsBackToSubject(t *testing.T) {
	v := NewVerifier("k")
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "17",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("k"))

	id, err := v.ParseAccessToken(tok)
	if err != nil || id != 17 {
		t.Fatalf("got %d %v", id, err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"abc":         "",
	}
	for in, want := range cases {
		if got := BearerToken(in); got != want {
			t.Fatalf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserIDContext(t *testing.T) {
	ctx := WithUserID(context.Background(), 9)
	if id, ok := UserIDFromContext(ctx); !ok || id != 9 {
		t.Fatalf("got %d %v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("empty context reported a user")
	}
}
