package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
)

func TestIssueAndParseToken(t *testing.T) {
	clock := quartz.NewMock(t)
	signer := NewSigner([]byte("secret"), time.Hour, clock)

	issued, claims, err := signer.Issue(Identity{UserID: 42, Name: "Avery", RoleIDs: []string{"100", "200"}})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if claims.JTI == "" {
		t.Fatal("expected a token id")
	}
	parsed, err := signer.Parse(issued)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.UserID() != 42 || parsed.Name != "Avery" || len(parsed.RoleIDs) != 2 {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	clock := quartz.NewMock(t)
	signer := NewSigner([]byte("secret"), time.Hour, clock)

	issued, _, err := signer.Issue(Identity{UserID: 42, Name: "Avery"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	clock.Advance(59 * time.Minute)
	if _, err := signer.Parse(issued); err != nil {
		t.Fatalf("Parse() before expiry error = %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := signer.Parse(issued); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Parse() at expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	clock := quartz.NewMock(t)
	signer := NewSigner([]byte("secret"), time.Hour, clock)
	issued, _, err := signer.Issue(Identity{UserID: 42, Name: "Avery"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other := NewSigner([]byte("other"), time.Hour, clock)
	forged, err := IssueToken([]byte("other"), Claims{Sub: "1", Name: "Root", JTI: "x", Exp: clock.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	badSub, err := IssueToken([]byte("secret"), Claims{Sub: "not-a-number", Name: "Root", JTI: "x", Exp: clock.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	cases := map[string]string{
		"empty":          "",
		"no signature":   strings.Split(issued, ".")[0],
		"wrong secret":   forged,
		"swapped parts":  strings.Split(issued, ".")[1] + "." + strings.Split(issued, ".")[0],
		"non numeric id": badSub,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := signer.Parse(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
	if _, err := other.Parse(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Parse() with other secret error = %v", err)
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	signer := NewSigner([]byte("secret"), time.Hour, quartz.NewMock(t))
	if _, _, err := signer.Issue(Identity{Name: "Avery"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Issue() without user id error = %v", err)
	}
}
