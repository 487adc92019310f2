package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/quietlab/explog/internal/store"
)

// StreamInfo summarizes one registered stream.
type StreamInfo struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	HasSchema   bool   `json:"has_schema" yaml:"has_schema"`
	Rows        int    `json:"rows" yaml:"rows"`
}

// StreamsResult is the output of the streams command.
type StreamsResult struct {
	Streams []StreamInfo `json:"streams" yaml:"streams"`
}

// NewStreamsCommand creates the streams command.
func NewStreamsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List registered streams with row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.OpenReadOnly(rootOpts.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := collectStreams(db)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
				return renderStreams(w, result.Streams)
			})
		},
	}
}

func collectStreams(db *store.DB) (*StreamsResult, error) {
	rows, err := db.Query(
		`SELECT m.id, m.name, m.description, m.schema != '',
		        (SELECT COUNT(*) FROM log WHERE log.stream = m.id)
		 FROM meta m WHERE m.mtype = 'STREAM' ORDER BY m.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("read streams: %w", err)
	}
	defer rows.Close()

	result := &StreamsResult{}
	for rows.Next() {
		var s StreamInfo
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.HasSchema, &s.Rows); err != nil {
			return nil, fmt.Errorf("read streams: %w", err)
		}
		result.Streams = append(result.Streams, s)
	}
	return result, rows.Err()
}

func renderStreams(w io.Writer, streams []StreamInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROWS\tSCHEMA\tDESCRIPTION")
	for _, s := range streams {
		schema := ""
		if s.HasSchema {
			schema = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Name, s.Rows, schema, s.Description)
	}
	return tw.Flush()
}
