package explog

import "github.com/quietlab/explog/internal/session"

// EnterOption configures a single Enter call.
type EnterOption func(*session.Opts)

// WithTemplate links the new instance to the named SESSION template.
// The template must be registered; without this option a template sharing
// the entered name is linked automatically when one exists.
func WithTemplate(name string) EnterOption {
	return func(o *session.Opts) { o.Template = name }
}

// WithSessionData stores a JSON payload on the new instance.
func WithSessionData(data any) EnterOption {
	return func(o *session.Opts) { o.Data = data }
}

// AsTestRun flags the instance as test data so analysis can exclude it.
func AsTestRun() EnterOption {
	return func(o *session.Opts) { o.TestRun = true }
}

// WithSeed records the random seed in effect for the instance.
func WithSeed(seed int64) EnterOption {
	return func(o *session.Opts) { o.Seed = &seed }
}

// Enter opens a child session under the current one and makes it the
// active leaf. An empty name creates a repetition: a sibling named with
// the next free numeric index ("0", "1", ...). Returns the new instance
// id.
//
// The instance is linked to the current run, stamped with the corrected
// clock, and committed.
func (l *Log) Enter(name string, opts ...EnterOption) (int64, error) {
	o := session.Opts{TestRun: l.testRun}
	for _, opt := range opts {
		opt(&o)
	}
	id, err := l.stack.Enter(name, o)
	if err != nil {
		return 0, err
	}
	if err := l.db.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Leave closes the active leaf as valid and complete. With only the root
// open it fails with AddressingError and mutates nothing.
func (l *Log) Leave() error {
	return l.LeaveWith(true, true)
}

// LeaveWith closes the active leaf with explicit valid/complete flags.
func (l *Log) LeaveWith(valid, complete bool) error {
	if err := l.stack.Leave(valid, complete); err != nil {
		return err
	}
	return l.db.Commit()
}

// Cd moves the active stack to an absolute path, leaving sessions above
// the longest common prefix and entering the remaining suffix. The shared
// prefix is never closed and reopened. Commits, like the equivalent
// Leave/Enter sequence would.
func (l *Log) Cd(path string) error {
	if err := l.stack.Cd(path); err != nil {
		return err
	}
	return l.db.Commit()
}

// SessionPath returns the canonical slash-joined address of the active
// stack; "/" when only the root is open.
func (l *Log) SessionPath() string {
	return l.stack.Path()
}

// SessionID returns the id of the active leaf instance (the root when
// nothing is open).
func (l *Log) SessionID() int64 {
	return l.stack.Current().ID
}

// Seed returns a stable random seed for the active leaf instance: unique
// per instance and reproducible from the recorded data. Pass it to
// WithSeed on a re-run to reproduce the instance's randomization.
func (l *Log) Seed() int64 {
	return l.stack.Current().ID
}
