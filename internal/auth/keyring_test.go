package auth

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func testRing(t *testing.T) *Keyring {
	t.Helper()
	ring := NewKeyring()
	if err := ring.Add("tok-admin-0123456789", Principal{UserID: "alice", Role: "admin"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ring.Add("tok-reader", Principal{UserID: "bob", Role: "reader"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	return ring
}

func headerWith(value string) http.Header {
	h := http.Header{}
	if value != "" {
		h.Set("Authorization", value)
	}
	return h
}

func TestAuthenticateStates(t *testing.T) {
	a := NewAuthenticator(true, testRing(t))
	cases := []struct {
		name       string
		header     string
		wantState  State
		wantReason string
		wantUser   string
	}{
		{name: "valid token", header: "Bearer tok-admin-0123456789", wantState: StateAuthenticated, wantUser: "alice"},
		{name: "missing header", header: "", wantState: StateRejected, wantReason: ReasonMissingHeader},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz", wantState: StateRejected, wantReason: ReasonNotBearer},
		{name: "bare token without scheme", header: "tok-admin-0123456789", wantState: StateRejected, wantReason: ReasonNotBearer},
		{name: "lowercase scheme rejected", header: "bearer tok-reader", wantState: StateRejected, wantReason: ReasonNotBearer},
		{name: "uppercase scheme rejected", header: "BEARER tok-reader", wantState: StateRejected, wantReason: ReasonNotBearer},
		{name: "tab after scheme rejected", header: "Bearer\ttok-reader", wantState: StateRejected, wantReason: ReasonNotBearer},
		{name: "empty token", header: "Bearer ", wantState: StateRejected, wantReason: ReasonEmptyToken},
		{name: "double space keeps token verbatim", header: "Bearer  tok-reader", wantState: StateRejected, wantReason: ReasonUnknownToken},
		{name: "unknown token", header: "Bearer nope-token", wantState: StateRejected, wantReason: ReasonUnknownToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := a.Authenticate(headerWith(tc.header))
			if res.State != tc.wantState {
				t.Fatalf("state = %s, want %s", res.State, tc.wantState)
			}
			if res.Reason != tc.wantReason {
				t.Fatalf("reason = %q, want %q", res.Reason, tc.wantReason)
			}
			if tc.wantUser != "" && res.Principal.UserID != tc.wantUser {
				t.Fatalf("user = %q, want %q", res.Principal.UserID, tc.wantUser)
			}
		})
	}
}

func TestAuthenticateNilHeaderSet(t *testing.T) {
	a := NewAuthenticator(true, testRing(t))
	res := a.Authenticate(nil)
	if res.State != StateRejected {
		t.Fatalf("state = %s, want %s", res.State, StateRejected)
	}
	if res.Reason != ReasonHeaderUnavailable {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonHeaderUnavailable)
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	a := NewAuthenticator(false, nil)
	res := a.Authenticate(headerWith("Bearer whatever"))
	if res.State != StateNotApplicable {
		t.Fatalf("state = %s, want %s", res.State, StateNotApplicable)
	}
}

func TestTokenPrefixNeverExceedsEightChars(t *testing.T) {
	a := NewAuthenticator(true, testRing(t))
	res := a.Authenticate(headerWith("Bearer tok-admin-0123456789"))
	if res.TokenPrefix != "tok-admi" {
		t.Fatalf("prefix = %q, want %q", res.TokenPrefix, "tok-admi")
	}
	res = a.Authenticate(headerWith("Bearer secret-unknown-token"))
	if res.TokenPrefix != "secret-u" {
		t.Fatalf("unknown token prefix = %q, want %q", res.TokenPrefix, "secret-u")
	}
}

func TestLoadKeyringFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.yaml")
	content := "keys:\n" +
		"  - token: file-token-1\n" +
		"    user_id: carol\n" +
		"    role: editor\n" +
		"  - token: file-token-2\n" +
		"    user_id: dave\n" +
		"    role: reader\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write keyring: %v", err)
	}
	ring, err := LoadKeyringFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ring.Len() != 2 {
		t.Fatalf("len = %d, want 2", ring.Len())
	}
	p, ok := ring.Lookup("file-token-1")
	if !ok || p.UserID != "carol" || p.Role != "editor" {
		t.Fatalf("lookup = %+v, %v", p, ok)
	}
}

func TestParseKeyringEnv(t *testing.T) {
	ring := NewKeyring()
	if err := ParseKeyringEnv(ring, "t1=alice:admin, t2=bob:reader ,t3=carol"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, ok := ring.Lookup("t2")
	if !ok || p.UserID != "bob" || p.Role != "reader" {
		t.Fatalf("t2 = %+v, %v", p, ok)
	}
	p, ok = ring.Lookup("t3")
	if !ok || p.Role != "" {
		t.Fatalf("t3 = %+v, %v (want empty role)", p, ok)
	}
	if err := ParseKeyringEnv(ring, "garbage-without-equals"); err == nil {
		t.Fatalf("expected error for malformed entry")
	}
	if err := ParseKeyringEnv(ring, "t1=dup:role"); err == nil {
		t.Fatalf("expected duplicate token error")
	}
}
