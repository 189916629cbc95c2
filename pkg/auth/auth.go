// Package auth authenticates clients before a session is allowed to
// stream audio. The transport calls Authorize with the token from the
// client's first frame; everything after that is tied to the returned
// principal.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/curalink/voicebridge/pkg/errorsx"
)

// Authorizer validates a bearer token and resolves it to a principal
// identifier. Implementations return a ReasonAuthFailed error for any
// rejected token; callers never learn why a token was rejected.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (principal string, err error)
}

// StaticAuthorizer checks tokens against a fixed token->principal table
// loaded from configuration. Comparison is constant time over token
// digests so lookup timing does not leak which tokens exist.
type StaticAuthorizer struct {
	entries []staticEntry
}

type staticEntry struct {
	digest    [sha256.Size]byte
	principal string
}

func NewStaticAuthorizer(tokens map[string]string) *StaticAuthorizer {
	a := &StaticAuthorizer{}
	for token, principal := range tokens {
		if token == "" {
			continue
		}
		a.entries = append(a.entries, staticEntry{
			digest:    sha256.Sum256([]byte(token)),
			principal: principal,
		})
	}
	return a
}

func (a *StaticAuthorizer) Authorize(_ context.Context, token string) (string, error) {
	digest := sha256.Sum256([]byte(token))
	principal := ""
	matched := 0
	for _, entry := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], entry.digest[:]) == 1 {
			principal = entry.principal
			matched = 1
		}
	}
	if matched == 0 {
		return "", errorsx.New(errorsx.ReasonAuthFailed, "unknown token")
	}
	return principal, nil
}

// AllowAll accepts every token and maps it to a fixed principal. Local
// development only.
type AllowAll struct {
	Principal string
}

func (a AllowAll) Authorize(_ context.Context, _ string) (string, error) {
	if a.Principal == "" {
		return "anonymous", nil
	}
	return a.Principal, nil
}

var (
	_ Authorizer = (*StaticAuthorizer)(nil)
	_ Authorizer = AllowAll{}
)
