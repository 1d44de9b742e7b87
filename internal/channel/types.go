package channel

import "context"

// Target identifies where an announcement is delivered.
type Target struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

// Payload is an outbound message. Text is required; the rest is optional
// presentation.
type Payload struct {
	Text           string
	ParseMode      string
	DisablePreview bool
}

// MessageRef points at a delivered message.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Sender is the outbound channel contract.
//
// Implementations must classify failures with the typed errors in this
// package (RateLimitError / TransientError / PermanentError) so callers can
// branch on outcome instead of string matching.
type Sender interface {
	Send(ctx context.Context, to Target, p Payload) (MessageRef, error)
}
