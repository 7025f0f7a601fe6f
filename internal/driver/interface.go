package driver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrKeyConflict is returned when a created node collides with an
	// existing node on its unique key.
	ErrKeyConflict = errors.New("unique key already exists")

	// ErrUnavailable wraps failures to reach the graph store at all.
	ErrUnavailable = errors.New("graph store unavailable")

	ErrTxDone = errors.New("transaction already finished")

	// ErrNotFound is returned for an unknown document or a relationship
	// endpoint that does not exist.
	ErrNotFound = errors.New("not found")
)

// NodeRef identifies a node by its label and unique key.
type NodeRef struct {
	Label string
	Key   string
	Value interface{}
}

func (r NodeRef) String() string {
	return fmt.Sprintf("(:%s {%s: %v})", r.Label, r.Key, r.Value)
}

// History is the persisted state of one document.
type History struct {
	Revisions      int
	LastRevisionID int64
	LastTimestamp  time.Time
	// ContentHashes in order of first appearance, by revision id.
	ContentHashes []string
}

type GraphDriver interface {
	// EnsureUniqueKey declares property as the unique key of label.
	EnsureUniqueKey(ctx context.Context, label, property string) error
	Begin(ctx context.Context) (Tx, error)
	DocumentHistory(ctx context.Context, title string) (History, error)
	RevisionIDs(ctx context.Context) ([]int64, error)
	Purge(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is a write transaction. Nothing is visible to other transactions
// before Commit.
type Tx interface {
	// CreateNode fails with ErrKeyConflict if the key is taken.
	CreateNode(ctx context.Context, label string, props map[string]interface{}) (NodeRef, error)
	// MergeNode creates the node if its key is absent and otherwise reuses
	// the existing node unchanged.
	MergeNode(ctx context.Context, label, key string, props map[string]interface{}) (NodeRef, error)
	// UpdateNode sets props on an existing node and reports whether it
	// was found. It never creates nodes.
	UpdateNode(ctx context.Context, ref NodeRef, props map[string]interface{}) (bool, error)
	CreateRelationship(ctx context.Context, from NodeRef, relType string, to NodeRef) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// checkIdentifiers guards labels, keys and relationship types that are
// spliced into query text.
func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !identifier.MatchString(n) {
			return fmt.Errorf("invalid identifier %q", n)
		}
	}
	return nil
}
