// Package binding records time-stamped associations between metadata
// entries and session instances, and resolves the set inherited by the
// current active stack.
//
// Inheritance is structural and forward-only: a binding attaches to one
// instance; descendants see it because that instance sits below them on
// the stack, not because anything is copied. A fresh instance of the same
// named condition starts unbound.
package binding

import (
	"fmt"
	"strings"

	"github.com/quietlab/explog/internal/clock"
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/store"
)

// Ref identifies a bound metadata entry.
type Ref struct {
	Kind meta.Kind
	Name string
}

// Engine appends and resolves bindings.
type Engine struct {
	db    *store.DB
	clock clock.Clock
}

// NewEngine creates a binding engine over an open store.
func NewEngine(db *store.DB, clk clock.Clock) *Engine {
	return &Engine{db: db, clock: clk}
}

// Bind appends a (meta, session, time) row. Re-binding the same pair adds
// a new row; history is never overwritten.
func (e *Engine) Bind(metaID, sessionID int64) error {
	_, err := e.db.Exec(
		`INSERT INTO meta_session (meta, session, time) VALUES (?, ?, ?)`,
		metaID, sessionID, meta.TimeSeconds(e.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("bind meta %d to session %d: %w", metaID, sessionID, err)
	}
	return nil
}

// Active resolves the distinct (kind, name) pairs bound to any of the given
// instances - strictly the active stack, root to leaf, never arbitrary
// descendants or unrelated branches.
func (e *Engine) Active(stackIDs []int64) ([]Ref, error) {
	if len(stackIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(stackIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(stackIDs))
	for i, id := range stackIDs {
		args[i] = id
	}

	rows, err := e.db.Query(
		`SELECT DISTINCT m.mtype, m.name
		 FROM meta_session ms JOIN meta m ON m.id = ms.meta
		 WHERE ms.session IN (`+placeholders+`)
		 ORDER BY m.mtype, m.name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve bindings: %w", err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, fmt.Errorf("resolve bindings: %w", err)
		}
		refs = append(refs, Ref{Kind: meta.Kind(kind), Name: name})
	}
	return refs, rows.Err()
}
