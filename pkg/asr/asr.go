// Package asr adapts a callback-driven speech recognition vendor client into
// an ordered, backpressured event sequence consumable by sequential code.
package asr

import (
	"context"

	"github.com/curalink/voicebridge/pkg/events"
)

// Recognizer is the vendor-facing streaming client. Implementations run
// vendor I/O on their own goroutines and publish results on Events.
//
// Start errors carry a stable errorsx reason code: auth_failed for credential
// rejection, connect_failed for anything else. The Events sequence finishes
// with Terminated or an unrecoverable VendorError; implementations may also
// close the channel once the vendor connection is done.
type Recognizer interface {
	Name() string
	Start(ctx context.Context) error
	SendAudio(data []byte) error
	Events() <-chan events.TranscriptEvent
	Close() error
}
