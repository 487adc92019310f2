// Package explog is an embedded, append-mostly logging engine for
// scientific experiments.
//
// An open Log records timestamped JSON observations from named streams,
// organizes them under a hierarchical session address (experiment →
// condition → repetition), binds metadata to sessions with stack-scoped
// inheritance, and tracks which process lifetime produced which data.
//
//	log, err := explog.Open("study.db", explog.WithExperimenter("kw"))
//	...
//	defer log.Close()
//
//	log.Enter("Experiment")
//	log.Enter("ConditionA")
//	log.Enter("") // repetition "0"
//	id, err := log.Record("mouse", map[string]any{"x": 0, "y": 10})
//
// One process, one Log, one writer; concurrent external readers are fine,
// concurrent writers to the same file are not supported.
package explog

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/quietlab/explog/internal/binding"
	"github.com/quietlab/explog/internal/clock"
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/run"
	"github.com/quietlab/explog/internal/session"
	"github.com/quietlab/explog/internal/store"
	"github.com/quietlab/explog/internal/stream"
)

// Kind tags a metadata catalog entry.
type Kind = meta.Kind

const (
	Stream    = meta.KindStream
	Session   = meta.KindSession
	User      = meta.KindUser
	Equipment = meta.KindEquipment
	Dataset   = meta.KindDataset
)

// Stage is the bootstrap progress of a store.
type Stage = meta.Stage

const (
	StageInit   = meta.StageInit
	StageSetup  = meta.StageSetup
	StageActive = meta.StageActive
)

// Ref identifies a bound metadata entry.
type Ref = binding.Ref

// Row is one log record read back from the store.
type Row = stream.Row

// Log is an open experiment store handle. Methods are blocking and
// non-reentrant; the handle is not safe for concurrent use.
type Log struct {
	db      *store.DB
	reg     *meta.Registry
	doc     *meta.Doc
	clock   clock.Clock
	run     *run.Tracker
	stack   *session.Stack
	streams *stream.Registry
	binds   *binding.Engine
	testRun bool
}

// Open creates or opens an experiment store at path and starts a new run.
//
// Opening measures the clock offset (when NTP servers are configured),
// applies the schema on first use, reports dirty exits from prior runs,
// and commits the bootstrap state so the new run row survives a crash.
func Open(path string, opts ...Option) (*Log, error) {
	options := applyOptions(opts)

	clk := options.clock
	if clk == nil {
		clk = clock.Probe(options.ntpServers, options.ntpTimeout)
	}

	db, err := store.Open(path, options.autocommit)
	if err != nil {
		return nil, err
	}

	l, err := bootstrap(db, clk, options)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Everything up to here - schema, stage, dataset document, the run row,
	// the root session - must survive even if the process dies before the
	// first explicit commit.
	if err := db.Commit(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("store opened", "path", path, "run", l.run.ID(), "dirty_exits", l.run.DirtyExits())
	return l, nil
}

func bootstrap(db *store.DB, clk clock.Clock, options options) (*Log, error) {
	reg := meta.NewRegistry(db)
	reg.AllowLateTemplates = options.lateTemplates

	if err := reg.InitStage(clk.Now()); err != nil {
		return nil, err
	}

	doc, err := reg.EnsureDataset()
	if err != nil {
		return nil, err
	}

	tracker, err := run.Begin(db, clk, options.experimenter, options.runConfig)
	if err != nil {
		return nil, err
	}

	stack, err := session.NewStack(db, reg, clk, tracker.Link)
	if err != nil {
		return nil, err
	}

	streams, err := stream.NewRegistry(db, reg, clk)
	if err != nil {
		return nil, err
	}

	return &Log{
		db:      db,
		reg:     reg,
		doc:     doc,
		clock:   clk,
		run:     tracker,
		stack:   stack,
		streams: streams,
		binds:   binding.NewEngine(db, clk),
		testRun: options.testRun,
	}, nil
}

// End marks the current run cleanly finished. Idempotent; Close calls it
// if the caller has not.
func (l *Log) End() error {
	return l.run.End()
}

// Close ends the run, flushes buffered writes and releases the connection.
// Safe to call on every exit path; later calls are no-ops.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	endErr := l.run.End()
	closeErr := l.db.Close()
	l.db = nil
	if endErr != nil {
		return endErr
	}
	return closeErr
}

// Commit forces buffered writes to disk. Normally unnecessary: commits
// happen on enter/leave, on the autocommit interval, and at Close.
func (l *Log) Commit() error {
	return l.db.Commit()
}

// AddIndices builds secondary indices on (stream, time) and (session,
// time). Intended to run once after bulk ingestion; calling earlier is
// legal but degrades append throughput.
func (l *Log) AddIndices() error {
	return l.db.AddIndices()
}

// Execute is the raw pass-through for caller-defined auxiliary tables,
// typically keyed on ids returned by Record. Statements join the buffered
// transaction.
func (l *Log) Execute(query string, args ...any) (sql.Result, error) {
	return l.db.Exec(query, args...)
}

// Query runs a raw query against the store, seeing buffered writes.
// Callers must close the returned rows.
func (l *Log) Query(query string, args ...any) (*sql.Rows, error) {
	return l.db.Query(query, args...)
}

// RunID returns the id of the run started by Open.
func (l *Log) RunID() int64 {
	return l.run.ID()
}

// DirtyExits returns the number of prior runs that were never ended, as
// counted at Open. Diagnostic only; nothing is repaired.
func (l *Log) DirtyExits() int {
	return l.run.DirtyExits()
}

// Now returns the handle's offset-corrected, non-decreasing timestamp -
// the same clock that stamps log rows and session boundaries.
func (l *Log) Now() time.Time {
	return l.clock.Now()
}
