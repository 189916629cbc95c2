package auth

import (
	"context"
	"testing"

	"github.com/curalink/voicebridge/pkg/errorsx"
)

func TestStaticAuthorizerResolvesPrincipal(t *testing.T) {
	a := NewStaticAuthorizer(map[string]string{
		"tok-alice": "alice",
		"tok-bob":   "bob",
	})
	principal, err := a.Authorize(context.Background(), "tok-bob")
	if err != nil {
		t.Fatalf("authorize error: %v", err)
	}
	if principal != "bob" {
		t.Fatalf("expected bob, got %q", principal)
	}
}

func TestStaticAuthorizerRejectsUnknownToken(t *testing.T) {
	a := NewStaticAuthorizer(map[string]string{"tok-alice": "alice"})
	_, err := a.Authorize(context.Background(), "tok-mallory")
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if errorsx.Reason(err) != errorsx.ReasonAuthFailed {
		t.Fatalf("expected auth_failed, got %s", errorsx.Reason(err))
	}
}

func TestStaticAuthorizerIgnoresEmptyTokens(t *testing.T) {
	a := NewStaticAuthorizer(map[string]string{"": "ghost"})
	if _, err := a.Authorize(context.Background(), ""); err == nil {
		t.Fatalf("empty token must never authenticate")
	}
}

func TestAllowAllDefaultsPrincipal(t *testing.T) {
	principal, err := AllowAll{}.Authorize(context.Background(), "anything")
	if err != nil {
		t.Fatalf("authorize error: %v", err)
	}
	if principal != "anonymous" {
		t.Fatalf("expected anonymous, got %q", principal)
	}
}
