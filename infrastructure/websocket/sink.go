package websocket

import (
	"collab-lab/domain/event"
	"collab-lab/errors"
	"context"
	"sync"
)

// Sink buffers encoded frames for the write pump of one connection.
// Consume never blocks: the fanout calls it while holding a room lock.
type Sink struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewSink(bufferSize int) *Sink {
	return &Sink{
		frames: make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

func (s *Sink) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return errors.ErrSinkClosed
	default:
	}

	frame, err := event.Encode(e)
	if err != nil {
		return err
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		return errors.ErrSinkFull
	}
}

// Close is safe to call more than once. Frames still buffered are dropped.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *Sink) Frames() <-chan []byte {
	return s.frames
}

func (s *Sink) Done() <-chan struct{} {
	return s.closed
}
