package meta

import (
	"database/sql"
	"fmt"
	"time"
)

// Stage is the bootstrap progress of a store. Transitions are monotonic:
// a store moves init → setup → active and never back. History is kept
// append-only in the setup table; the current stage is the latest row.
type Stage int

const (
	StageInit Stage = iota
	StageSetup
	StageActive
)

var stageNames = [...]string{"init", "setup", "active"}

// String returns the persisted stage name.
func (s Stage) String() string {
	if s < StageInit || s > StageActive {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage maps a persisted stage name back to its value.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, &ConfigurationError{Op: "parse stage", Message: fmt.Sprintf("unknown stage %q", name)}
}

// InitStage records the init stage for a freshly created store. Called
// once at first open, before any other catalog access.
func (r *Registry) InitStage(t time.Time) error {
	stage, err := r.currentStage()
	if err != nil {
		return err
	}
	if stage >= 0 {
		return nil
	}
	return r.appendStage(StageInit, t)
}

// Stage returns the store's current stage.
func (r *Registry) Stage() (Stage, error) {
	stage, err := r.currentStage()
	if err != nil {
		return 0, err
	}
	if stage < 0 {
		return 0, &ConfigurationError{Op: "get stage", Message: "store has no stage history"}
	}
	return stage, nil
}

// AdvanceStage moves the store to a later stage. Setting the current stage
// again is a no-op; moving backwards fails with ConfigurationError.
func (r *Registry) AdvanceStage(to Stage, t time.Time) error {
	current, err := r.Stage()
	if err != nil {
		return err
	}
	if to == current {
		return nil
	}
	if to < current {
		return &ConfigurationError{
			Op:      "set stage",
			Message: fmt.Sprintf("cannot move from %s back to %s", current, to),
		}
	}
	return r.appendStage(to, t)
}

func (r *Registry) currentStage() (Stage, error) {
	var name string
	err := r.db.QueryRow(`SELECT stage FROM setup ORDER BY id DESC LIMIT 1`).Scan(&name)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stage: %w", err)
	}
	return ParseStage(name)
}

func (r *Registry) appendStage(s Stage, t time.Time) error {
	_, err := r.db.Exec(`INSERT INTO setup (stage, time) VALUES (?, ?)`,
		s.String(), TimeSeconds(t))
	if err != nil {
		return fmt.Errorf("set stage %s: %w", s, err)
	}
	return nil
}

// TimeSeconds stores timestamps as Unix seconds with fractional precision,
// matching the REAL time columns across the schema.
func TimeSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromSeconds converts a stored REAL time column back to a time.Time.
func FromSeconds(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}
