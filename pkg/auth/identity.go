// Package auth carries already-authenticated caller identities through escrowd.
//
// escrowd never verifies signatures. The execution environment in front of it
// authenticates the caller and asserts the resulting identity; this package
// only parses, derives, compares and transports those identities.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// MaxIdentityLength bounds the textual form of an Identity.
const MaxIdentityLength = 128

var (
	// ErrEmptyIdentity is returned when an identity string is empty.
	ErrEmptyIdentity = errors.New("identity cannot be empty")

	// ErrInvalidIdentity is returned when an identity contains disallowed characters.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrEmptySeed is returned when DeriveIdentity receives no usable seed parts.
	ErrEmptySeed = errors.New("identity seed cannot be empty")
)

var identityPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// Identity is an account identity asserted by the trusted execution boundary.
type Identity string

// String implements fmt.Stringer.
func (i Identity) String() string {
	return string(i)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i == ""
}

// ParseIdentity validates s and returns it as an Identity.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return "", ErrEmptyIdentity
	}
	if len(s) > MaxIdentityLength {
		return "", fmt.Errorf("%w: exceeds max length %d", ErrInvalidIdentity, MaxIdentityLength)
	}
	if !identityPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q contains invalid characters", ErrInvalidIdentity, s)
	}
	return Identity(s), nil
}

// ParseIdentities parses every element of ss, failing on the first invalid one.
func ParseIdentities(ss []string) ([]Identity, error) {
	out := make([]Identity, len(ss))
	for i, s := range ss {
		id, err := ParseIdentity(s)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", i, err)
		}
		out[i] = id
	}
	return out, nil
}

// DeriveIdentity derives a stable program-owned identity from seed parts.
//
// The result is the hex SHA256 of the parts joined with a zero byte, so
// ("a", "bc") and ("ab", "c") never collide. Nobody holds a key for a derived
// identity; only escrowd moves funds out of it.
//
// Example:
//
//	vault, err := auth.DeriveIdentity("task_vault", "alpha")
func DeriveIdentity(parts ...string) (Identity, error) {
	if len(parts) == 0 {
		return "", ErrEmptySeed
	}
	h := sha256.New()
	for i, p := range parts {
		if p == "" {
			return "", ErrEmptySeed
		}
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return Identity(hex.EncodeToString(h.Sum(nil))), nil
}

type callerCtxKey struct{}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller Identity) context.Context {
	return context.WithValue(ctx, callerCtxKey{}, caller)
}

// CallerFromContext returns the authenticated caller, if one was attached.
func CallerFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(callerCtxKey{}).(Identity)
	if !ok || id.IsZero() {
		return "", false
	}
	return id, true
}
