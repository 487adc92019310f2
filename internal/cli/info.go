package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietlab/explog/internal/store"
)

// RunInfo summarizes one run row.
type RunInfo struct {
	ID           int64   `json:"id" yaml:"id"`
	Start        string  `json:"start" yaml:"start"`
	End          *string `json:"end,omitempty" yaml:"end,omitempty"`
	Experimenter string  `json:"experimenter,omitempty" yaml:"experimenter,omitempty"`
	Dirty        bool    `json:"dirty" yaml:"dirty"`
}

// InfoResult is the output of the info command.
type InfoResult struct {
	Stage      string         `json:"stage" yaml:"stage"`
	Dataset    map[string]any `json:"dataset" yaml:"dataset"`
	Sessions   int            `json:"sessions" yaml:"sessions"`
	LogRows    int            `json:"log_rows" yaml:"log_rows"`
	DirtyExits int            `json:"dirty_exits" yaml:"dirty_exits"`
	Runs       []RunInfo      `json:"runs" yaml:"runs"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show store stage, dataset document and run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.OpenReadOnly(rootOpts.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := collectInfo(db)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
				return renderInfo(w, result)
			})
		},
	}
}

func collectInfo(db *store.DB) (*InfoResult, error) {
	result := &InfoResult{Dataset: map[string]any{}}

	if err := db.QueryRow(`SELECT stage FROM setup ORDER BY id DESC LIMIT 1`).Scan(&result.Stage); err != nil {
		return nil, fmt.Errorf("read stage: %w", err)
	}

	var doc sql.NullString
	err := db.QueryRow(`SELECT json FROM meta WHERE mtype = 'DATASET' LIMIT 1`).Scan(&doc)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read dataset document: %w", err)
	}
	if doc.Valid {
		if err := json.Unmarshal([]byte(doc.String), &result.Dataset); err != nil {
			return nil, fmt.Errorf("decode dataset document: %w", err)
		}
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM session`).Scan(&result.Sessions); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM log`).Scan(&result.LogRows); err != nil {
		return nil, fmt.Errorf("count log rows: %w", err)
	}

	rows, err := db.Query(`SELECT id, start_time, end_time, experimenter, dirty FROM run ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r RunInfo
		var start float64
		var end sql.NullFloat64
		if err := rows.Scan(&r.ID, &start, &end, &r.Experimenter, &r.Dirty); err != nil {
			return nil, fmt.Errorf("read runs: %w", err)
		}
		r.Start = formatTime(start)
		if end.Valid {
			s := formatTime(end.Float64)
			r.End = &s
		} else {
			result.DirtyExits++
		}
		result.Runs = append(result.Runs, r)
	}
	return result, rows.Err()
}

func renderInfo(w io.Writer, r *InfoResult) error {
	fmt.Fprintf(w, "stage:       %s\n", r.Stage)
	fmt.Fprintf(w, "sessions:    %d\n", r.Sessions)
	fmt.Fprintf(w, "log rows:    %d\n", r.LogRows)
	fmt.Fprintf(w, "dirty exits: %d\n", r.DirtyExits)
	if len(r.Dataset) > 0 {
		fmt.Fprintln(w, "dataset:")
		b, err := json.MarshalIndent(r.Dataset, "  ", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", b)
	}
	fmt.Fprintln(w, "runs:")
	for _, run := range r.Runs {
		end := "(never ended)"
		if run.End != nil {
			end = *run.End
		}
		fmt.Fprintf(w, "  [%d] %s .. %s %s\n", run.ID, run.Start, end, run.Experimenter)
	}
	return nil
}

func formatTime(sec float64) string {
	return time.Unix(0, int64(sec*1e9)).UTC().Format(time.RFC3339)
}
