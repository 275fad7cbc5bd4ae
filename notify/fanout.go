package notify

import (
	"context"

	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/rs/zerolog"
)

// Fanout delivers an event to a primary notifier and mirrors it to others.
// Only the primary decides whether a token is valid; mirror failures are
// logged and swallowed.
type Fanout struct {
	primary upload.Notifier
	mirrors []upload.Notifier
}

func NewFanout(primary upload.Notifier, mirrors ...upload.Notifier) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors}
}

func (f *Fanout) Notify(ctx context.Context, token, event string, payload any) error {
	err := f.primary.Notify(ctx, token, event, payload)
	for _, m := range f.mirrors {
		if merr := m.Notify(ctx, token, event, payload); merr != nil {
			zerolog.Ctx(ctx).Warn().Err(merr).Str("token", token).Msg("failed to mirror event")
		}
	}
	return err
}
