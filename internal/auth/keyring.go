package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pkt.systems/engramd/internal/logfields"
)

// Keyring maps bearer tokens to principals. It is populated once at
// startup and read-only afterwards, so lookups need no locking.
type Keyring struct {
	byToken map[string]Principal
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{byToken: make(map[string]Principal)}
}

// Add registers a token for p. Duplicate tokens are a configuration
// error; the first eight characters identify the offender.
func (k *Keyring) Add(token string, p Principal) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty token")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("token %s...: user id required", logfields.TokenPrefix(token))
	}
	if _, dup := k.byToken[token]; dup {
		return fmt.Errorf("duplicate token %s...", logfields.TokenPrefix(token))
	}
	k.byToken[token] = Principal{
		UserID: strings.TrimSpace(p.UserID),
		Role:   strings.TrimSpace(p.Role),
	}
	return nil
}

// Lookup resolves a token to its principal.
func (k *Keyring) Lookup(token string) (Principal, bool) {
	p, ok := k.byToken[token]
	return p, ok
}

// Len returns the number of registered tokens.
func (k *Keyring) Len() int {
	return len(k.byToken)
}

type keyringFile struct {
	Keys []struct {
		Token  string `yaml:"token"`
		UserID string `yaml:"user_id"`
		Role   string `yaml:"role"`
	} `yaml:"keys"`
}

// LoadKeyringFile reads a YAML keyring file:
//
//	keys:
//	  - token: s3cr3t-token
//	    user_id: alice
//	    role: admin
func LoadKeyringFile(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	var file keyringFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse keyring %s: %w", path, err)
	}
	ring := NewKeyring()
	for i, entry := range file.Keys {
		if err := ring.Add(entry.Token, Principal{UserID: entry.UserID, Role: entry.Role}); err != nil {
			return nil, fmt.Errorf("keyring %s entry %d: %w", path, i, err)
		}
	}
	return ring, nil
}

// ParseKeyringEnv merges "token=user:role" comma-separated entries into
// ring. The role part is optional; "token=user" yields an empty role.
func ParseKeyringEnv(ring *Keyring, value string) error {
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, ident, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid api key entry %q (want token=user:role)", logfields.TokenPrefix(entry))
		}
		user, role, _ := strings.Cut(ident, ":")
		if err := ring.Add(token, Principal{UserID: user, Role: role}); err != nil {
			return err
		}
	}
	return nil
}

// Authenticator resolves bearer credentials from request headers. When
// disabled every attempt yields StateNotApplicable.
type Authenticator struct {
	enabled bool
	keys    *Keyring
}

// NewAuthenticator builds an authenticator over ring. A nil ring is
// treated as empty.
func NewAuthenticator(enabled bool, ring *Keyring) *Authenticator {
	if ring == nil {
		ring = NewKeyring()
	}
	return &Authenticator{enabled: enabled, keys: ring}
}

// Enabled reports whether authentication is enforced.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Authenticate inspects the Authorization header and returns the
// tri-state outcome. It never logs; callers own the decision of whether
// a rejection aborts the request.
func (a *Authenticator) Authenticate(header http.Header) Result {
	if !a.enabled {
		return Result{State: StateNotApplicable}
	}
	if header == nil {
		return Result{State: StateRejected, Reason: ReasonHeaderUnavailable}
	}
	raw := header.Get("Authorization")
	if raw == "" {
		return Result{State: StateRejected, Reason: ReasonMissingHeader}
	}
	// The scheme is the literal "Bearer " with exactly one space; the
	// remainder is the token, verbatim.
	const scheme = "Bearer "
	if !strings.HasPrefix(raw, scheme) {
		return Result{State: StateRejected, Reason: ReasonNotBearer}
	}
	token := raw[len(scheme):]
	if token == "" {
		return Result{State: StateRejected, Reason: ReasonEmptyToken}
	}
	prefix := logfields.TokenPrefix(token)
	principal, found := a.keys.Lookup(token)
	if !found {
		return Result{State: StateRejected, Reason: ReasonUnknownToken, TokenPrefix: prefix}
	}
	return Result{State: StateAuthenticated, Principal: principal, TokenPrefix: prefix}
}
