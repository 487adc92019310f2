package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/quietlab/explog/internal/store"
)

// TailOptions holds flags for the tail command.
type TailOptions struct {
	*RootOptions
	Count int
}

// TailRow is one log row in tail output.
type TailRow struct {
	ID      int64           `json:"id" yaml:"id"`
	Time    string          `json:"time" yaml:"time"`
	Session int64           `json:"session" yaml:"session"`
	Valid   bool            `json:"valid" yaml:"valid"`
	Tag     string          `json:"tag,omitempty" yaml:"tag,omitempty"`
	Data    json.RawMessage `json:"data,omitempty" yaml:"data,omitempty"`
}

// TailResult is the output of the tail command.
type TailResult struct {
	Stream string    `json:"stream" yaml:"stream"`
	Rows   []TailRow `json:"rows" yaml:"rows"`
}

// NewTailCommand creates the tail command.
func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TailOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tail <stream>",
		Short: "Show the most recent rows of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.OpenReadOnly(rootOpts.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := collectTail(db, args[0], opts.Count)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
				return renderTail(w, result)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 10, "number of rows to show")
	return cmd
}

func collectTail(db *store.DB, stream string, count int) (*TailResult, error) {
	var streamID int64
	err := db.QueryRow(`SELECT id FROM meta WHERE mtype = 'STREAM' AND name = ?`, stream).Scan(&streamID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stream %q not registered", stream)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve stream %q: %w", stream, err)
	}

	rows, err := db.Query(
		`SELECT id, time, session, valid, tag, json
		 FROM log WHERE stream = ? ORDER BY id DESC LIMIT ?`,
		streamID, count,
	)
	if err != nil {
		return nil, fmt.Errorf("read stream %q: %w", stream, err)
	}
	defer rows.Close()

	result := &TailResult{Stream: stream}
	for rows.Next() {
		var r TailRow
		var t float64
		var tag, data sql.NullString
		if err := rows.Scan(&r.ID, &t, &r.Session, &r.Valid, &tag, &data); err != nil {
			return nil, fmt.Errorf("read stream %q: %w", stream, err)
		}
		r.Time = formatTime(t)
		r.Tag = tag.String
		if data.Valid {
			r.Data = json.RawMessage(data.String)
		}
		result.Rows = append(result.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first, like tail(1).
	for i, j := 0, len(result.Rows)-1; i < j; i, j = i+1, j-1 {
		result.Rows[i], result.Rows[j] = result.Rows[j], result.Rows[i]
	}
	return result, nil
}

func renderTail(w io.Writer, r *TailResult) error {
	for _, row := range r.Rows {
		line := fmt.Sprintf("[%d] %s session=%d", row.ID, row.Time, row.Session)
		if !row.Valid {
			line += " INVALID"
		}
		if row.Tag != "" {
			line += " tag=" + row.Tag
		}
		if len(row.Data) > 0 {
			line += " " + string(row.Data)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
