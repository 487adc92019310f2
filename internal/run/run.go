// Package run tracks process lifetimes: each open of a store starts a run,
// sessions touched during it are linked through the run_session join, and
// a prior run left without an end time is reported as a dirty exit.
package run

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quietlab/explog/internal/clock"
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/store"
)

// Tracker represents the current run.
type Tracker struct {
	db    *store.DB
	clock clock.Clock

	id         int64
	ended      bool
	dirtyExits int
}

// Begin counts unterminated prior runs, then inserts the row for this run.
// A dirty exit is purely diagnostic; nothing is repaired.
func Begin(db *store.DB, clk clock.Clock, experimenter string, config any) (*Tracker, error) {
	t := &Tracker{db: db, clock: clk}

	err := db.QueryRow(`SELECT COUNT(*) FROM run WHERE end_time IS NULL`).Scan(&t.dirtyExits)
	if err != nil {
		return nil, fmt.Errorf("count dirty exits: %w", err)
	}
	if t.dirtyExits > 0 {
		slog.Warn("previous run did not exit cleanly", "dirty_exits", t.dirtyExits)
	}

	var data any
	if config != nil {
		b, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("marshal run config: %w", err)
		}
		data = string(b)
	}

	t.id, err = db.Insert(
		`INSERT INTO run (start_time, experimenter, dirty, json) VALUES (?, ?, 1, ?)`,
		meta.TimeSeconds(clk.Now()), experimenter, data,
	)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	slog.Debug("run started", "run", t.id, "experimenter", experimenter)
	return t, nil
}

// ID returns the current run's id.
func (t *Tracker) ID() int64 { return t.id }

// DirtyExits returns the number of prior runs found without an end time at
// open.
func (t *Tracker) DirtyExits() int { return t.dirtyExits }

// Link records that this run touched the given session instance.
// Re-linking the same instance is a no-op, so a session reopened within one
// run yields a single join row.
func (t *Tracker) Link(sessionID int64) error {
	_, err := t.db.Exec(
		`INSERT INTO run_session (run, session) VALUES (?, ?)
		 ON CONFLICT(run, session) DO NOTHING`,
		t.id, sessionID,
	)
	if err != nil {
		return fmt.Errorf("link run %d to session %d: %w", t.id, sessionID, err)
	}
	return nil
}

// End stamps the run's end time and clears the dirty flag. Idempotent: the
// second and later calls change nothing.
func (t *Tracker) End() error {
	if t.ended {
		return nil
	}
	_, err := t.db.Exec(
		`UPDATE run SET end_time = ?, dirty = 0 WHERE id = ? AND end_time IS NULL`,
		meta.TimeSeconds(t.clock.Now()), t.id,
	)
	if err != nil {
		return fmt.Errorf("end run %d: %w", t.id, err)
	}
	t.ended = true
	slog.Debug("run ended", "run", t.id)
	return nil
}
