package ws

// Client protocol. Every frame is a JSON text message with a "type"
// discriminator. Inbound: auth (first frame, always), audio, close.
// Outbound: status, partial_transcript, final_transcript, content,
// complete, error.

const (
	inboundAuth  = "auth"
	inboundAudio = "audio"
	inboundClose = "close"

	outboundStatus  = "status"
	outboundPartial = "partial_transcript"
	outboundFinal   = "final_transcript"
	outboundContent = "content"
	outboundDone    = "complete"
	outboundError   = "error"
)

// InboundFrame is a client-to-server message.
type InboundFrame struct {
	Type string `json:"type"`
	// Token authenticates the connection; auth frames only.
	Token string `json:"token,omitempty"`
	// SessionID optionally resumes a prior conversation; auth frames only.
	SessionID string `json:"session_id,omitempty"`
	// Data is a base64 standard-encoding audio payload; audio frames only.
	Data string `json:"data,omitempty"`
}

// OutboundFrame is a server-to-client message. Fields are populated per
// Type; absent fields are omitted on the wire.
type OutboundFrame struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id,omitempty"`
	Message    string  `json:"message,omitempty"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Code       string  `json:"code,omitempty"`
}
