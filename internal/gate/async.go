package gate

import (
	"context"
	"errors"
	"sync"

	"parking-spots/internal/logging"
	"parking-spots/internal/parking"
)

var (
	ErrQueueFull = errors.New("gate signal queue full")
	ErrClosed    = errors.New("gate signaler closed")
)

type queuedCommand struct {
	ctx context.Context
	cmd parking.GateCommand
}

// AsyncSignaler hands gate commands to a single worker so that a slow
// barrier controller never holds up the request that admitted the vehicle.
// Commands are delivered in the order they were queued.
type AsyncSignaler struct {
	next  parking.Signaler
	queue chan queuedCommand
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncSignaler(next parking.Signaler, size int) *AsyncSignaler {
	if size < 1 {
		size = 1
	}
	s := &AsyncSignaler{
		next:  next,
		queue: make(chan queuedCommand, size),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Signal queues cmd and returns without waiting for delivery. The request
// context is detached from cancellation but keeps its trace and logger.
func (s *AsyncSignaler) Signal(ctx context.Context, cmd parking.GateCommand) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	select {
	case s.queue <- queuedCommand{ctx: context.WithoutCancel(ctx), cmd: cmd}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AsyncSignaler) run() {
	defer close(s.done)
	for q := range s.queue {
		if err := s.next.Signal(q.ctx, q.cmd); err != nil {
			logging.Warn(q.ctx).
				Err(err).
				Int64("spot_id", q.cmd.SpotID).
				Str("command", string(q.cmd.Action)).
				Msg("gate signal delivery failed")
		}
	}
}

// Close stops accepting commands and waits for the queued ones to be
// delivered, or for ctx to end.
func (s *AsyncSignaler) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
