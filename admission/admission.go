package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrCapacity is returned when the pipeline sheds a request because all
	// concurrency slots are taken.
	ErrCapacity = errors.New("admission: at capacity")
	// ErrTimeout is returned when admitted work exceeds the per-request deadline.
	ErrTimeout = errors.New("admission: deadline exceeded")
)

// Config tunes the admission pipeline.
type Config struct {
	// MaxConcurrent is the number of requests allowed in flight at once.
	MaxConcurrent int
	// Timeout bounds the execution of each admitted request. Zero disables
	// the per-request deadline.
	Timeout time.Duration
}

// DefaultConfig returns conservative pipeline defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 256,
		Timeout:       5 * time.Second,
	}
}

// Pipeline admits requests in three stages: shed when no slot is free,
// hold a concurrency slot for the duration of the work, and bound the
// work with a deadline. Shedding never blocks the caller.
type Pipeline struct {
	slots    chan struct{}
	timeout  time.Duration
	inFlight atomic.Int64
	shed     atomic.Uint64
	timedOut atomic.Uint64
}

// New creates a Pipeline from cfg. MaxConcurrent is floored at 1.
func New(cfg Config) *Pipeline {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Pipeline{
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		timeout: cfg.Timeout,
	}
}

// Do runs fn under admission control. It returns ErrCapacity without
// running fn when no slot is free, and ErrTimeout when fn gives up on a
// context cancelled by the pipeline deadline. Errors from fn itself pass
// through unchanged.
func (p *Pipeline) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case p.slots <- struct{}{}:
	default:
		p.shed.Add(1)
		return ErrCapacity
	}
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		<-p.slots
	}()

	if p.timeout <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := fn(tctx)
	if err != nil && tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		p.timedOut.Add(1)
		return ErrTimeout
	}
	return err
}

// InFlight reports the number of requests currently admitted.
func (p *Pipeline) InFlight() int64 { return p.inFlight.Load() }

// Shed reports the number of requests rejected at the capacity stage.
func (p *Pipeline) Shed() uint64 { return p.shed.Load() }

// TimedOut reports the number of admitted requests cut off by the deadline.
func (p *Pipeline) TimedOut() uint64 { return p.timedOut.Load() }
