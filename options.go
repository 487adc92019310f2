package explog

import (
	"time"

	"github.com/quietlab/explog/internal/clock"
)

type options struct {
	experimenter  string
	runConfig     any
	clock         clock.Clock
	ntpServers    []string
	ntpTimeout    time.Duration
	autocommit    time.Duration
	lateTemplates bool
	testRun       bool
}

// Option configures Open.
type Option func(*options)

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithExperimenter records who is running this process on the run row.
func WithExperimenter(name string) Option {
	return func(o *options) { o.experimenter = name }
}

// WithRunConfig stores an arbitrary JSON-encodable configuration on the
// run row, so every row of data can be traced back to the settings that
// produced it.
func WithRunConfig(config any) Option {
	return func(o *options) { o.runConfig = config }
}

// WithClock supplies the timestamp source, replacing the default
// NTP-corrected system clock. Tests use this to make time deterministic.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithNTP enables clock correction against the given NTP servers. The
// offset is measured once at Open; with no servers configured timestamps
// come from the uncorrected system clock.
func WithNTP(servers ...string) Option {
	return func(o *options) { o.ntpServers = servers }
}

// WithNTPTimeout bounds the total time Open may spend measuring the clock
// offset. Default is clock.DefaultProbeTimeout.
func WithNTPTimeout(d time.Duration) Option {
	return func(o *options) { o.ntpTimeout = d }
}

// WithAutocommit commits buffered writes whenever this interval has
// elapsed, checked on the append path. Zero (the default) disables
// time-based commits; writes then persist on enter/leave, explicit Commit,
// and Close.
func WithAutocommit(interval time.Duration) Option {
	return func(o *options) { o.autocommit = interval }
}

// WithLateTemplates permits SESSION-template registration after the store
// has left the init stage.
func WithLateTemplates() Option {
	return func(o *options) { o.lateTemplates = true }
}

// WithTestRun marks every session entered through this handle as test data,
// so a whole dry run can be excluded from analysis without touching each
// Enter call.
func WithTestRun() Option {
	return func(o *options) { o.testRun = true }
}
