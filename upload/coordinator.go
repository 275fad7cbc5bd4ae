package upload

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWindow    = 200 * time.Millisecond
	DefaultChunkSize = 32 << 10
)

// Storage opens the destination of one uploaded file. The returned writer
// receives the file bytes in order and is closed exactly once. Cancelling
// ctx before Close discards whatever the backend has not committed yet.
type Storage interface {
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// Request is the part of an inbound HTTP request the coordinator consumes.
type Request struct {
	Body        io.Reader
	ContentType string
	// Token routes progress events to the subscriber that started the upload.
	Token string
}

type Options struct {
	Window    time.Duration
	ChunkSize int
	Clock     Clock
}

type Option func(*Options)

// WithWindow sets the minimum time between two progress events of a file.
func WithWindow(d time.Duration) Option {
	return func(o *Options) {
		o.Window = d
	}
}

// WithChunkSize sets the size of the single buffer a session streams through.
func WithChunkSize(n int) Option {
	return func(o *Options) {
		o.ChunkSize = n
	}
}

func WithClock(c Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

func NewCoordinator(s Storage, n Notifier, opts ...Option) *Coordinator {
	o := Options{
		Window:    DefaultWindow,
		ChunkSize: DefaultChunkSize,
		Clock:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	return &Coordinator{
		store:    s,
		notifier: n,
		opts:     o,
	}
}

// Coordinator streams every file of a multipart body into Storage while
// reporting progress through a Notifier. It holds no per-request state and
// is safe for concurrent use.
type Coordinator struct {
	store    Storage
	notifier Notifier
	opts     Options
}

// Handle consumes req.Body until the closing boundary. Files are stored one
// after another; the body is never read faster than storage accepts bytes.
// onComplete is called once when every file was stored. On failure Handle
// returns a single error wrapping ErrMalformedUpload, ErrWriteFailure,
// ErrConnectionAborted or ErrInvalidSession, and onComplete is not called.
// Files stored before the failure are left in place.
func (c *Coordinator) Handle(ctx context.Context, req Request, onComplete func(Summary)) error {
	log := zerolog.Ctx(ctx).With().Str("token", req.Token).Logger()
	ctx = log.WithContext(ctx)

	ctx, span := tracer.Start(ctx, "upload.Handle")
	defer span.End()

	s := newSession(req.Token, c.opts.Window)
	if req.Token == "" {
		return c.fail(ctx, s, span, fmt.Errorf("%w: missing subscriber token", ErrInvalidSession))
	}

	body := &bodyReader{ctx: ctx, r: req.Body}
	demux, err := NewDemux(body, req.ContentType)
	if err != nil {
		return c.fail(ctx, s, span, err)
	}

	buf := make([]byte, c.opts.ChunkSize)
	for {
		part, err := demux.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.fail(ctx, s, span, body.cause(err))
		}

		if part.FileName == "" {
			log.Debug().Str("field_name", part.FieldName).Msg("skipping form field")
			if _, err := io.CopyBuffer(io.Discard, part, buf); err != nil {
				return c.fail(ctx, s, span, body.cause(err))
			}
			continue
		}

		if err := c.receive(ctx, s, part, buf); err != nil {
			return c.fail(ctx, s, span, body.cause(err))
		}
	}

	s.state = stateCompleted
	sum := s.summary()
	sessionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", s.state.String())))
	span.SetAttributes(
		attribute.Int("upload.files", sum.Files),
		attribute.Int64("upload.bytes", sum.Bytes))
	log.Info().
		Int("files", sum.Files).
		Int64("written_size", sum.Bytes).
		Msg("upload completed")

	if onComplete != nil {
		onComplete(sum)
	}
	return nil
}

// receive stores a single file part.
func (c *Coordinator) receive(ctx context.Context, s *session, part *Part, buf []byte) error {
	name, err := baseName(part.FileName)
	if err != nil {
		return err
	}
	field := s.open(part.FieldName, name)

	ctx, span := tracer.Start(ctx, "upload.receive",
		trace.WithAttributes(
			attribute.String("field_name", field.FieldName),
			attribute.String("file_name", field.FileName)))
	defer span.End()

	log := zerolog.Ctx(ctx)
	log.Debug().
		Str("field_name", field.FieldName).
		Str("file_name", field.FileName).
		Msg("receiving file")

	sinkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := c.store.Create(sinkCtx, name)
	if err != nil {
		return fmt.Errorf("%w: open %q: %w", ErrWriteFailure, name, err)
	}

	pw := &progressWriter{
		ctx:      ctx,
		dst:      w,
		field:    field,
		token:    s.token,
		window:   s.window,
		clock:    c.opts.Clock,
		notifier: c.notifier,
	}
	_, err = io.CopyBuffer(pw, part, buf)
	if err != nil {
		cancel()
	}
	closeErr := w.Close()

	switch {
	case pw.werr != nil:
		return fmt.Errorf("%w: write %q: %w", ErrWriteFailure, name, pw.werr)
	case err != nil:
		return err
	case closeErr != nil:
		return fmt.Errorf("%w: close %q: %w", ErrWriteFailure, name, closeErr)
	}

	log.Info().
		Str("file_name", field.FileName).
		Int64("written_size", field.Processed).
		Msg("File Uploaded")
	return nil
}

func (c *Coordinator) fail(ctx context.Context, s *session, span trace.Span, err error) error {
	s.state = stateFailed
	sessionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", s.state.String())))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	zerolog.Ctx(ctx).Error().Err(err).
		Int("files", len(s.fields)).
		Msg("upload failed")
	return err
}

// baseName strips any directory from a client declared filename.
func baseName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: invalid filename", ErrMalformedUpload)
	}
	return name, nil
}
