package upload

import (
	"context"
	"fmt"
	"io"
	"time"
)

// sessionState is the lifecycle stage of an upload session.
type sessionState int

const (
	stateIdle sessionState = iota
	stateReceiving
	stateCompleted
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateReceiving:
		return "receiving"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session is a single upload request. It is owned by the goroutine serving
// the request and never shared.
type session struct {
	token  string
	window time.Duration

	state  sessionState
	fields []*FieldStream
}

func newSession(token string, window time.Duration) *session {
	return &session{
		token:  token,
		window: window,
		state:  stateIdle,
	}
}

func (s *session) open(fieldName, fileName string) *FieldStream {
	if s.state == stateIdle {
		s.state = stateReceiving
	}
	f := &FieldStream{
		FieldName: fieldName,
		FileName:  fileName,
	}
	s.fields = append(s.fields, f)
	return f
}

func (s *session) summary() Summary {
	sum := Summary{Files: len(s.fields)}
	for _, f := range s.fields {
		sum.Bytes += f.Processed
	}
	return sum
}

// Summary describes a completed session.
type Summary struct {
	Files int
	Bytes int64
}

// bodyReader guards the inbound stream. The first failure of the underlying
// reader, or a cancelled context, sticks and is reported as
// ErrConnectionAborted.
type bodyReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if err := b.ctx.Err(); err != nil {
		b.err = fmt.Errorf("%w: %w", ErrConnectionAborted, err)
		return 0, b.err
	}
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.err = fmt.Errorf("%w: %w", ErrConnectionAborted, err)
		return n, b.err
	}
	return n, err
}

// cause prefers the inbound stream failure over whatever the parser made of
// it.
func (b *bodyReader) cause(err error) error {
	if b.err != nil {
		return b.err
	}
	return err
}
