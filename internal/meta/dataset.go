package meta

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// datasetName is the catalog name of the DATASET singleton.
const datasetName = "dataset"

// Doc is the dataset-wide key/value facade: one JSON document on the
// DATASET singleton, mutated field by field. Absent fields are not errors.
type Doc struct {
	reg    *Registry
	id     int64
	fields map[string]any
}

// EnsureDataset loads the DATASET singleton, creating it on first open.
// A fresh dataset is stamped with a random dataset_id so stores can be
// told apart after files are copied around.
func (r *Registry) EnsureDataset() (*Doc, error) {
	entry, ok, err := r.Lookup(KindDataset, datasetName)
	if err != nil {
		return nil, err
	}
	if !ok {
		fields := map[string]any{"dataset_id": uuid.NewString()}
		id, err := r.insert(KindDataset, datasetName, Attrs{Data: fields})
		if err != nil {
			return nil, err
		}
		return &Doc{reg: r, id: id, fields: fields}, nil
	}

	fields := map[string]any{}
	if len(entry.JSON) > 0 {
		if err := json.Unmarshal(entry.JSON, &fields); err != nil {
			return nil, fmt.Errorf("load dataset document: %w", err)
		}
	}
	return &Doc{reg: r, id: entry.ID, fields: fields}, nil
}

// Get returns the value stored under field. ok is false when the field is
// absent.
func (d *Doc) Get(field string) (any, bool) {
	v, ok := d.fields[field]
	return v, ok
}

// Set stores value under field and persists the document. The value must
// be JSON-encodable.
func (d *Doc) Set(field string, value any) error {
	old, had := d.fields[field]
	d.fields[field] = value
	b, err := json.Marshal(d.fields)
	if err != nil {
		if had {
			d.fields[field] = old
		} else {
			delete(d.fields, field)
		}
		return fmt.Errorf("set dataset field %q: %w", field, err)
	}
	if _, err := d.reg.db.Exec(`UPDATE meta SET json = ? WHERE id = ?`, string(b), d.id); err != nil {
		return fmt.Errorf("set dataset field %q: %w", field, err)
	}
	return nil
}

// Keys returns the document's field names, sorted.
func (d *Doc) Keys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
