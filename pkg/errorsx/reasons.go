package errorsx

// ReasonCode is a short machine-readable error reason. The codes below are
// stable: they are what clients see, never raw vendor error text.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonAuthFailed       ReasonCode = "auth_failed"
	ReasonConnectFailed    ReasonCode = "connect_failed"
	ReasonStreamFailed     ReasonCode = "stream_failed"
	ReasonResponseTooLarge ReasonCode = "response_too_large"
	ReasonProtocolError    ReasonCode = "protocol_error"
	ReasonCancelled        ReasonCode = "cancelled"
	ReasonSessionBusy      ReasonCode = "session_busy"
	ReasonStoreRead        ReasonCode = "store_read"
	ReasonStoreWrite       ReasonCode = "store_write"
)

var userMessages = map[ReasonCode]string{
	ReasonUnknown:          "an unexpected error occurred",
	ReasonAuthFailed:       "authorization failed",
	ReasonConnectFailed:    "could not reach the speech service",
	ReasonStreamFailed:     "the stream was interrupted",
	ReasonResponseTooLarge: "response too long",
	ReasonProtocolError:    "malformed message",
	ReasonCancelled:        "cancelled",
	ReasonSessionBusy:      "a response is already in progress",
	ReasonStoreRead:        "could not load conversation history",
	ReasonStoreWrite:       "could not save conversation history",
}

// UserMessage returns the human-readable text reported to clients for a
// reason code. Vendor exception text is never forwarded to clients.
func UserMessage(reason ReasonCode) string {
	if msg, ok := userMessages[reason]; ok {
		return msg
	}
	return userMessages[ReasonUnknown]
}
