package upload

import "context"

// ProgressEventName is the event name progress notifications are sent under.
const ProgressEventName = "file-upload"

// ProgressEvent reports how many bytes of a file were stored so far.
type ProgressEvent struct {
	Filename         string `json:"filename"`
	ProcessedAlready int64  `json:"processedAlready"`
}

// Notifier delivers an event to the subscriber identified by token.
// Implementations return ErrInvalidSession when nobody is subscribed under
// token.
type Notifier interface {
	Notify(ctx context.Context, token, event string, payload any) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, token, event string, payload any) error

func (f NotifierFunc) Notify(ctx context.Context, token, event string, payload any) error {
	return f(ctx, token, event, payload)
}
