package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quietlab/explog/internal/store"
)

// SessionNode is one address in the session tree with its instance count.
type SessionNode struct {
	Path      string `json:"path" yaml:"path"`
	Instances int    `json:"instances" yaml:"instances"`
}

// SessionsResult is the output of the sessions command.
type SessionsResult struct {
	Nodes []SessionNode `json:"nodes" yaml:"nodes"`
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show the session tree with instance counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.OpenReadOnly(rootOpts.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := collectSessions(db)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
				return RenderSessionTree(w, result.Nodes)
			})
		},
	}
}

func collectSessions(db *store.DB) (*SessionsResult, error) {
	rows, err := db.Query(
		`SELECT p.name, COUNT(s.id)
		 FROM meta p LEFT JOIN session s ON s.path = p.id
		 WHERE p.mtype = 'PATH'
		 GROUP BY p.name
		 ORDER BY p.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("read session tree: %w", err)
	}
	defer rows.Close()

	result := &SessionsResult{}
	for rows.Next() {
		var n SessionNode
		if err := rows.Scan(&n.Path, &n.Instances); err != nil {
			return nil, fmt.Errorf("read session tree: %w", err)
		}
		result.Nodes = append(result.Nodes, n)
	}
	return result, rows.Err()
}

// RenderSessionTree writes the tree as indented text, one node per line.
// Nodes arrive sorted by path, so parents precede their children.
func RenderSessionTree(w io.Writer, nodes []SessionNode) error {
	for _, n := range nodes {
		depth := 0
		name := n.Path
		if n.Path != "/" {
			parts := strings.Split(n.Path[1:], "/")
			depth = len(parts)
			name = parts[len(parts)-1]
		}
		indent := strings.Repeat("  ", depth)
		if _, err := fmt.Fprintf(w, "%s%s [%d]\n", indent, name, n.Instances); err != nil {
			return err
		}
	}
	return nil
}
