// Package events defines the tagged event variants exchanged between the
// recognition bridge, the session controller, and the completion trigger.
package events

// TranscriptKind identifies the variant of a TranscriptEvent.
type TranscriptKind string

const (
	TranscriptStatus      TranscriptKind = "status"
	TranscriptPartial     TranscriptKind = "partial"
	TranscriptFinal       TranscriptKind = "final"
	TranscriptVendorError TranscriptKind = "vendor_error"
	TranscriptTerminated  TranscriptKind = "terminated"
)

// TranscriptEvent is one event republished by the recognition bridge.
// Exactly one of the variant types below implements it.
type TranscriptEvent interface {
	TranscriptKind() TranscriptKind
}

// Status carries a non-transcript notification from the recognizer, such as
// connection confirmation. Status events are droppable under overflow.
type Status struct {
	Message string
}

func (Status) TranscriptKind() TranscriptKind { return TranscriptStatus }

// Partial is an interim hypothesis for the current utterance.
type Partial struct {
	Text string
}

func (Partial) TranscriptKind() TranscriptKind { return TranscriptPartial }

// Final closes the current utterance.
type Final struct {
	Text       string
	Confidence float64
}

func (Final) TranscriptKind() TranscriptKind { return TranscriptFinal }

// VendorError reports a recognizer fault with a stable machine code.
type VendorError struct {
	Message string
	Code    string
}

func (VendorError) TranscriptKind() TranscriptKind { return TranscriptVendorError }

// Terminated is the last event of a transcript sequence. Nothing may be
// emitted after it.
type Terminated struct{}

func (Terminated) TranscriptKind() TranscriptKind { return TranscriptTerminated }

// TokenKind identifies the variant of a CompletionToken.
type TokenKind string

const (
	TokenContent TokenKind = "content"
	TokenStop    TokenKind = "stop"
	TokenError   TokenKind = "error"
)

// CompletionToken is one token republished by the completion trigger.
type CompletionToken interface {
	TokenKind() TokenKind
}

// Content is an incremental chunk of assistant text.
type Content struct {
	Text string
}

func (Content) TokenKind() TokenKind { return TokenContent }

// Stop signals normal end of a completion. It is never emitted after Error.
type Stop struct{}

func (Stop) TokenKind() TokenKind { return TokenStop }

// Error ends a completion abnormally. Content already emitted stands.
type Error struct {
	Code    string
	Message string
}

func (Error) TokenKind() TokenKind { return TokenError }
