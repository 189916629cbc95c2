package errorsx

import "testing"

type assertErr struct{}

func (assertErr) Error() string { return "assert error" }

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonStreamFailed)
	if Reason(err) != ReasonStreamFailed {
		t.Fatalf("expected reason %s, got %s", ReasonStreamFailed, Reason(err))
	}
	if !HasReason(err, ReasonStreamFailed) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonAuthFailed)
	second := Wrap(first, ReasonStreamFailed)
	if Reason(second) != ReasonAuthFailed {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestUserMessageNeverLeaksVendorText(t *testing.T) {
	err := New(ReasonConnectFailed, "dial tcp 10.0.0.1:443: i/o timeout")
	msg := UserMessage(Reason(err))
	if msg != "could not reach the speech service" {
		t.Fatalf("unexpected user message: %q", msg)
	}
	if UserMessage("no_such_code") != userMessages[ReasonUnknown] {
		t.Fatalf("unknown codes should fall back to the generic message")
	}
}
