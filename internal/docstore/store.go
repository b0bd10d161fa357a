// Package docstore describes the replicated document store the client core
// reads and writes, and ships an in-process implementation of it.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document revision conflict")
	ErrInvalid  = errors.New("invalid document path")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Store is a document database with live subscriptions. Every write bumps
// the document revision; revisions start at 1.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Set(ctx context.Context, collection, id string, data any, opts ...WriteOption) (Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any, opts ...WriteOption) (Document, error)
	Add(ctx context.Context, collection string, data any) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	WatchDocument(ctx context.Context, collection, id string) (*Subscription, error)
	WatchCollection(ctx context.Context, collection string, q Query) (*Subscription, error)
}

type Document struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Revision   int64           `json:"revision"`
	Data       json.RawMessage `json:"data"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (d Document) Path() string {
	return d.Collection + "/" + d.ID
}

func (d Document) Decode(v any) error {
	if len(d.Data) == 0 {
		return fmt.Errorf("decode %s: empty document", d.Path())
	}
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path(), err)
	}
	return nil
}

// Query orders a collection by a top-level data field.
type Query struct {
	OrderBy    string `json:"orderBy,omitempty"`
	Descending bool   `json:"desc,omitempty"`
}

// Snapshot is the full current value of a watched path. For a document
// watch Document/Exists are set, for a collection watch Documents is.
type Snapshot struct {
	Path      string     `json:"path"`
	Exists    bool       `json:"exists"`
	Document  *Document  `json:"document,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

type WriteOptions struct {
	Merge       bool
	HasRevision bool
	Revision    int64
}

type WriteOption func(*WriteOptions)

// Merge merges top-level fields into the existing document instead of
// replacing it.
func Merge() WriteOption {
	return func(o *WriteOptions) { o.Merge = true }
}

// IfRevision makes the write conditional on the stored revision. Revision 0
// means the document must not exist yet.
func IfRevision(rev int64) WriteOption {
	return func(o *WriteOptions) {
		o.HasRevision = true
		o.Revision = rev
	}
}

func ApplyOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidatePath checks a collection name and an optional document id.
func ValidatePath(collection, id string) error {
	if !namePattern.MatchString(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalid, collection)
	}
	if id != "" && !namePattern.MatchString(id) {
		return fmt.Errorf("%w: id %q", ErrInvalid, id)
	}
	return nil
}

// SplitPath splits "collection" or "collection/id".
func SplitPath(path string) (string, string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], "", ValidatePath(parts[0], "")
	case 2:
		return parts[0], parts[1], ValidatePath(parts[0], parts[1])
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalid, path)
	}
}
