// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asyncio

// runtimeOptions holds configuration resolved from RuntimeOption values.
type runtimeOptions struct {
	pollTimeoutMs int
	logger        Logger
}

// RuntimeOption configures a Runtime at construction time, using the usual
// functional-options pattern.
type RuntimeOption interface {
	applyRuntime(*runtimeOptions)
}

type runtimeOptionFunc func(*runtimeOptions)

func (f runtimeOptionFunc) applyRuntime(o *runtimeOptions) { f(o) }

// WithLogger overrides the runtime's structured logger, used for fatal
// reactor errors and recovered task panics. The default is a stumpy JSON
// logger writing to stderr.
func WithLogger(logger Logger) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithPollTimeout sets the maximum time, in milliseconds, the executor
// blocks in a single reactor poll before re-checking the ready queue and
// termination state. A negative value blocks indefinitely until an fd
// becomes ready or Notify is called. The default is 10000ms (10s).
func WithPollTimeout(ms int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		o.pollTimeoutMs = ms
	})
}

func resolveOptions(opts []RuntimeOption) *runtimeOptions {
	cfg := &runtimeOptions{
		pollTimeoutMs: 10_000,
		logger:        defaultLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRuntime(cfg)
	}
	return cfg
}
