package upload

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// FieldStream is one file part of a session while it is being stored.
type FieldStream struct {
	FieldName string
	FileName  string
	// Processed is the number of bytes written to storage so far.
	Processed int64

	lastSent time.Time
}

// progressWriter sits between a part and its storage writer. Every chunk is
// written downstream first, then counted, then the field's gate decides
// whether a ProgressEvent goes out. It never originates errors, it only
// relays the ones returned by dst.
type progressWriter struct {
	ctx      context.Context
	dst      io.Writer
	field    *FieldStream
	token    string
	window   time.Duration
	clock    Clock
	notifier Notifier

	// werr is the first error returned by dst.
	werr         error
	notifyFailed bool
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.field.Processed += int64(n)
	bytesCounter.Add(w.ctx, int64(n))
	if err != nil {
		w.werr = err
		return n, err
	}

	now := w.clock()
	if !Allow(w.field.lastSent, now, w.window) {
		return n, nil
	}
	w.field.lastSent = now
	w.emit()
	return n, nil
}

func (w *progressWriter) emit() {
	log := zerolog.Ctx(w.ctx)
	ev := ProgressEvent{
		Filename:         w.field.FileName,
		ProcessedAlready: w.field.Processed,
	}
	if err := w.notifier.Notify(w.ctx, w.token, ProgressEventName, ev); err != nil {
		// the upload keeps going without an observer
		if !w.notifyFailed {
			lvl := zerolog.ErrorLevel
			if errors.Is(err, ErrInvalidSession) {
				lvl = zerolog.WarnLevel
			}
			log.WithLevel(lvl).Err(err).
				Str("token", w.token).
				Str("file_name", w.field.FileName).
				Msg("unable to deliver progress")
			w.notifyFailed = true
		}
		return
	}
	progressCounter.Add(w.ctx, 1)
	log.Debug().
		Str("token", w.token).
		Str("file_name", ev.Filename).
		Int64("processed_already", ev.ProcessedAlready).
		Msg("progress sent")
}
