package cache

import (
	"time"

	"github.com/objectfs/tiercache/pkg/types"
	"github.com/objectfs/tiercache/pkg/utils"
)

type options struct {
	logger   *utils.StructuredLogger
	recorder types.Recorder
	now      func() time.Time
}

// Option configures a store or a manager
type Option func(*options)

// WithLogger sets the logger used to report swallowed failures
func WithLogger(logger *utils.StructuredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder forwards cache events to a metrics recorder
func WithRecorder(r types.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithClock replaces time.Now, mostly for TTL tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:   utils.NewNopLogger(),
		recorder: types.NopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
