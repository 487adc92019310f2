// Package session maintains the hierarchical experiment structure: durable
// session instances forming a tree (experiment → condition → repetition)
// and the in-memory stack of currently open instances.
//
// The parent-id chain on session rows is the authoritative structure. The
// slash-joined path string is a denormalized key (PATH catalog entries,
// unique and prefix-closed) used for lookups and repetition numbering; the
// current address is always derived from the stack, never read back from
// storage.
package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quietlab/explog/internal/clock"
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/store"
)

// Instance is one open occurrence of a session node on the active stack.
type Instance struct {
	ID     int64
	Name   string // path component; "" for the root
	Path   string // canonical slash-joined address
	PathID int64
}

// Opts carries the optional fields of Enter.
type Opts struct {
	// Template names a SESSION template to link; empty means "link a
	// template with the entered name if one exists".
	Template string

	// Data is an optional JSON payload stored on the instance.
	Data any

	// TestRun marks the instance as test data.
	TestRun bool

	// Seed records the random seed in effect, when the caller has one.
	Seed *int64
}

// Stack is the path resolver: an ordered stack of open instances with the
// persistent root at the bottom. Exactly one Stack exists per open store
// handle; it is not shared across handles or processes.
type Stack struct {
	db    *store.DB
	reg   *meta.Registry
	clock clock.Clock
	link  func(sessionID int64) error // ties new instances to the current run

	open []Instance // open[0] is the root
}

// NewStack loads or creates the root instance and returns a stack holding
// just the root. link is called with every instance id the stack creates,
// root included.
func NewStack(db *store.DB, reg *meta.Registry, clk clock.Clock, link func(int64) error) (*Stack, error) {
	s := &Stack{db: db, reg: reg, clock: clk, link: link}

	rootPath, err := reg.Ensure(meta.KindPath, "/", meta.Attrs{})
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}

	root := Instance{Name: "", Path: "/", PathID: rootPath}
	err = db.QueryRow(`SELECT id FROM session WHERE path = ? LIMIT 1`, rootPath).Scan(&root.ID)
	if err != nil {
		// The root instance spans the whole dataset and is never closed.
		root.ID, err = db.Insert(
			`INSERT INTO session (start_time, valid, complete, path) VALUES (?, 1, 0, ?)`,
			meta.TimeSeconds(clk.Now()), rootPath,
		)
		if err != nil {
			return nil, fmt.Errorf("create root session: %w", err)
		}
	}

	if err := link(root.ID); err != nil {
		return nil, err
	}

	s.open = []Instance{root}
	return s, nil
}

// Enter opens a child session under the current top and pushes it.
//
// An empty name creates a repetition: a sibling named with the next free
// numeric index ("0", "1", ...). Otherwise the name must be a single path
// component. Returns the new instance id.
func (s *Stack) Enter(name string, opts Opts) (int64, error) {
	top := s.top()

	if name == "" {
		next, err := s.nextRepetition(top.Path)
		if err != nil {
			return 0, err
		}
		name = next
	} else {
		name = meta.Canonical(name)
		// A whitespace-only name would collapse to the parent's address.
		if name == "" {
			return 0, &AddressingError{Op: "enter", Path: top.Path, Message: "name is empty after normalization"}
		}
		if strings.Contains(name, "/") {
			return 0, &AddressingError{Op: "enter", Path: name, Message: "name must be a single path component"}
		}
	}

	path := joinPath(top.Path, name)
	pathID, err := s.reg.Ensure(meta.KindPath, path, meta.Attrs{})
	if err != nil {
		return 0, fmt.Errorf("enter %q: %w", path, err)
	}

	templateID, err := s.resolveTemplate(name, opts.Template)
	if err != nil {
		return 0, err
	}

	data, err := marshalData(opts.Data)
	if err != nil {
		return 0, fmt.Errorf("enter %q: %w", path, err)
	}

	id, err := s.db.Insert(
		`INSERT INTO session (start_time, test_run, random_seed, valid, complete, json, parent, path, meta)
		 VALUES (?, ?, ?, 1, 0, ?, ?, ?, ?)`,
		meta.TimeSeconds(s.clock.Now()), opts.TestRun, opts.Seed, data,
		top.ID, pathID, templateID,
	)
	if err != nil {
		return 0, fmt.Errorf("enter %q: %w", path, err)
	}

	if err := s.link(id); err != nil {
		return 0, err
	}

	s.open = append(s.open, Instance{ID: id, Name: name, Path: path, PathID: pathID})
	return id, nil
}

// Leave closes the top instance, stamping end time and the valid/complete
// flags. Leaving with only the root open fails with AddressingError and
// mutates nothing.
func (s *Stack) Leave(valid, complete bool) error {
	if len(s.open) == 1 {
		return &AddressingError{Op: "leave", Path: "/", Message: "cannot leave past the root"}
	}
	top := s.top()
	_, err := s.db.Exec(
		`UPDATE session SET end_time = ?, valid = ?, complete = ? WHERE id = ?`,
		meta.TimeSeconds(s.clock.Now()), valid, complete, top.ID,
	)
	if err != nil {
		return fmt.Errorf("leave %q: %w", top.Path, err)
	}
	s.open = s.open[:len(s.open)-1]
	return nil
}

// Cd moves the stack to an absolute path: instances above the longest
// common prefix with the current stack are left (valid and complete), the
// remaining suffix is entered. The shared prefix is never closed and
// reopened; its instances keep their ids.
func (s *Stack) Cd(path string) error {
	target, err := splitPath(path)
	if err != nil {
		return err
	}

	current := s.names()
	common := 0
	for common < len(current) && common < len(target) && current[common] == target[common] {
		common++
	}

	for i := len(current); i > common; i-- {
		if err := s.Leave(true, true); err != nil {
			return err
		}
	}
	for _, name := range target[common:] {
		if _, err := s.Enter(name, Opts{}); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the canonical slash-joined address of the current stack,
// "/" at the root. Derived from the stack, never read from storage.
func (s *Stack) Path() string {
	return s.top().Path
}

// Current returns the active leaf instance (the root when nothing is open).
func (s *Stack) Current() Instance {
	return s.top()
}

// OpenIDs returns the ids of every instance on the stack, root first.
// This is the scope over which metadata bindings are resolved.
func (s *Stack) OpenIDs() []int64 {
	ids := make([]int64, len(s.open))
	for i, inst := range s.open {
		ids[i] = inst.ID
	}
	return ids
}

// Depth returns the number of open instances above the root.
func (s *Stack) Depth() int {
	return len(s.open) - 1
}

func (s *Stack) top() Instance {
	return s.open[len(s.open)-1]
}

func (s *Stack) names() []string {
	names := make([]string, 0, len(s.open)-1)
	for _, inst := range s.open[1:] {
		names = append(names, inst.Name)
	}
	return names
}

// resolveTemplate links a SESSION template to a new instance: an explicit
// template name must exist; otherwise a template sharing the instance name
// is linked when present.
func (s *Stack) resolveTemplate(name, explicit string) (any, error) {
	lookup := explicit
	if lookup == "" {
		lookup = name
	}
	entry, ok, err := s.reg.Lookup(meta.KindSession, lookup)
	if err != nil {
		return nil, err
	}
	if !ok {
		if explicit != "" {
			return nil, &meta.ConfigurationError{
				Op:      "enter",
				Message: fmt.Sprintf("session template %q not registered", explicit),
			}
		}
		return nil, nil // NULL template column
	}
	return entry.ID, nil
}

// nextRepetition returns the next free numeric child index under path,
// starting at "0".
func (s *Stack) nextRepetition(path string) (string, error) {
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	rows, err := s.db.Query(
		`SELECT name FROM meta WHERE mtype = ? AND name GLOB ? AND name NOT GLOB ?`,
		string(meta.KindPath), prefix+"*", prefix+"*/*",
	)
	if err != nil {
		return "", fmt.Errorf("number repetition under %q: %w", path, err)
	}
	defer rows.Close()

	next := 0
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return "", fmt.Errorf("number repetition under %q: %w", path, err)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(child, prefix))
		if err != nil {
			continue // named sibling, not a repetition
		}
		if n >= next {
			next = n + 1
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("number repetition under %q: %w", path, err)
	}
	return strconv.Itoa(next), nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// splitPath decomposes an absolute address into canonical components.
func splitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, &AddressingError{Op: "cd", Path: path, Message: "path must be absolute"}
	}
	trimmed := strings.TrimSuffix(path[1:], "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		p = meta.Canonical(p)
		if p == "" {
			return nil, &AddressingError{Op: "cd", Path: path, Message: "empty path component"}
		}
		parts[i] = p
	}
	return parts, nil
}

func marshalData(data any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	return string(b), nil
}
