package engine

import (
	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// schedulerOptions holds configuration resolved from a slice of Option.
type schedulerOptions struct {
	backend     Backend
	ringEntries uint32
	logger      *logiface.Logger[*islog.Event]
	onOverload  func(error)
}

// Option configures a Scheduler.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

type optionImpl struct {
	fn func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error { return o.fn(opts) }

// WithBackend selects the Scheduler's I/O back-end explicitly, bypassing
// the usual io_uring-with-epoll-fallback probe. Mainly useful for tests.
func WithBackend(b Backend) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.backend = b
		return nil
	}}
}

// WithRingEntries requests a completion-ring submission-queue depth (the
// URING_ENTRIES tunable). Ignored when WithBackend supplies a back-end
// directly; rounded down to a power of two and halved on open failure.
func WithRingEntries(n uint32) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.ringEntries = n
		return nil
	}}
}

// WithLogger attaches a structured logger. Nil (the default) disables
// logging entirely.
func WithLogger(l *logiface.Logger[*islog.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithOverloadHandler registers a callback invoked whenever the run loop
// detects it cannot keep up (the spawn queue length exceeds a tick's
// processing budget).
func WithOverloadHandler(fn func(error)) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.onOverload = fn
		return nil
	}}
}

func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
