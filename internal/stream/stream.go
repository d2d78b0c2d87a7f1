// Package stream bridges a push-style token producer (the model gateway's
// streaming callback) to a pull-based consumer with cancellation and
// backpressure.
//
// A Stream moves through Open → Emitting → {Completed | Errored |
// Cancelled}. Tokens are delivered in production order; exactly one
// terminal state is reached and later terminal signals are no-ops. The
// token buffer is bounded: when the consumer falls behind, Emit blocks,
// applying backpressure upstream instead of dropping tokens.
//
// A Stream has a single producer goroutine and a single consumer.
package stream

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors returned by Recv and Emit.
var (
	// ErrDone signals normal stream completion to the consumer.
	ErrDone = errors.New("stream completed")

	// ErrCancelled is returned once the consumer has disconnected.
	ErrCancelled = errors.New("stream cancelled")

	// ErrTerminated is returned by Emit after a terminal event.
	ErrTerminated = errors.New("stream already terminated")
)

// State is the lifecycle state of a Stream.
type State int

const (
	// Open: created, no token emitted yet.
	Open State = iota

	// Emitting: at least one token has been emitted.
	Emitting

	// Completed: producer finished normally (terminal).
	Completed

	// Errored: producer failed (terminal).
	Errored

	// Cancelled: consumer disconnected (terminal).
	Cancelled
)

// DefaultBuffer is the default token buffer size.
const DefaultBuffer = 32

// Stream is a cancellable, ordered token channel.
type Stream struct {
	tokens    chan string
	cancelled chan struct{}

	mu    sync.Mutex
	state State
	err   error

	cancelOnce sync.Once
	onCancel   func() // propagates consumer disconnect upstream
}

// New creates a Stream with the given buffer size (<= 0 uses
// DefaultBuffer). onCancel, if non-nil, is invoked exactly once when the
// consumer cancels; producers pass the upstream context cancel func so a
// disconnect stops token production and releases the model call.
func New(buffer int, onCancel func()) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{
		tokens:    make(chan string, buffer),
		cancelled: make(chan struct{}),
		state:     Open,
		onCancel:  onCancel,
	}
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Emit delivers one token to the consumer, blocking while the buffer is
// full. Returns ErrCancelled if the consumer disconnected, ErrTerminated
// after a terminal event, or ctx.Err() if the producer context ends.
func (s *Stream) Emit(ctx context.Context, token string) error {
	s.mu.Lock()
	switch s.state {
	case Open:
		s.state = Emitting
	case Emitting:
	default:
		s.mu.Unlock()
		if s.state == Cancelled {
			return ErrCancelled
		}
		return ErrTerminated
	}
	s.mu.Unlock()

	select {
	case s.tokens <- token:
		return nil
	case <-s.cancelled:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete marks the stream as finished. Buffered tokens remain readable;
// Recv then returns ErrDone. No-op after any terminal event.
func (s *Stream) Complete() {
	s.terminate(Completed, nil)
}

// Fail marks the stream as failed with err. Buffered tokens remain
// readable; Recv then returns err. No-op after any terminal event.
func (s *Stream) Fail(err error) {
	if err == nil {
		err = ErrDone
	}
	s.terminate(Errored, err)
}

// terminate performs the single terminal transition. The tokens channel is
// closed here; the single-producer contract makes that safe (no Emit can be
// concurrent with Complete/Fail).
func (s *Stream) terminate(to State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Completed || s.state == Errored || s.state == Cancelled {
		return
	}
	s.state = to
	s.err = err
	close(s.tokens)
}

// Cancel signals consumer disconnect. Further Emit calls fail, Recv returns
// ErrCancelled, and the upstream cancel func runs exactly once. Safe to call
// multiple times and after a terminal event.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		terminal := s.state == Completed || s.state == Errored
		if !terminal {
			s.state = Cancelled
			s.err = ErrCancelled
		}
		s.mu.Unlock()

		close(s.cancelled)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

// Recv returns the next token in production order. After the terminal
// event (and once the buffer drains) it returns ErrDone, the Fail error, or
// ErrCancelled. ctx cancels the wait only.
func (s *Stream) Recv(ctx context.Context) (string, error) {
	select {
	case <-s.cancelled:
		return "", ErrCancelled
	default:
	}

	select {
	case token, ok := <-s.tokens:
		if !ok {
			return "", s.terminalError()
		}
		return token, nil
	case <-s.cancelled:
		return "", ErrCancelled
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Stream) terminalError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return ErrDone
}
