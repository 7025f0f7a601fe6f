package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evoapps/evotrees/internal/core/model"
)

// Relationship is a directed edge held by the MemoryDriver.
type Relationship struct {
	From NodeRef
	Type string
	To   NodeRef
}

// MemoryDriver is an in-process graph with the same unique-key semantics as
// the Bolt backends. Transactions are buffered and applied atomically on
// Commit.
type MemoryDriver struct {
	mu    sync.RWMutex
	keys  map[string]string
	nodes map[string]map[string]map[string]interface{}
	rels  []Relationship
}

func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		keys:  make(map[string]string),
		nodes: make(map[string]map[string]map[string]interface{}),
	}
}

func (d *MemoryDriver) EnsureUniqueKey(ctx context.Context, label, property string) error {
	if err := checkIdentifiers(label, property); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.keys[label]; ok && existing != property {
		return fmt.Errorf("label %s already keyed by %s", label, existing)
	}
	d.keys[label] = property
	return nil
}

func (d *MemoryDriver) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{
		d:       d,
		pending: make(map[string]map[string]*pendingNode),
	}, nil
}

func (d *MemoryDriver) Close(ctx context.Context) error {
	return nil
}

func (d *MemoryDriver) Purge(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = make(map[string]map[string]map[string]interface{})
	d.rels = nil
	return nil
}

func (d *MemoryDriver) DocumentHistory(ctx context.Context, title string) (History, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc := NodeRef{Label: model.LabelDocument, Key: model.KeyDocument, Value: title}
	if _, ok := d.lookup(doc); !ok {
		return History{}, fmt.Errorf("document %q: %w", title, ErrNotFound)
	}

	type row struct {
		id   int64
		ts   string
		hash string
	}
	var rows []row
	for _, rel := range d.rels {
		if rel.Type != model.RelContains || !sameNode(rel.From, doc) {
			continue
		}
		props, ok := d.lookup(rel.To)
		if !ok {
			continue
		}
		r := row{id: toInt64(props[model.KeyRevision])}
		r.ts, _ = props["timestamp"].(string)
		for _, c := range d.rels {
			if c.Type == model.RelChangedTo && sameNode(c.From, rel.To) {
				r.hash = keyString(c.To.Value)
				break
			}
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	h := History{Revisions: len(rows)}
	seen := make(map[string]bool)
	for _, r := range rows {
		if r.hash != "" && !seen[r.hash] {
			seen[r.hash] = true
			h.ContentHashes = append(h.ContentHashes, r.hash)
		}
	}
	if n := len(rows); n > 0 {
		h.LastRevisionID = rows[n-1].id
		if rows[n-1].ts != "" {
			h.LastTimestamp, _ = time.Parse(time.RFC3339, rows[n-1].ts)
		}
	}
	return h, nil
}

func (d *MemoryDriver) RevisionIDs(ctx context.Context) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]int64, 0, len(d.nodes[model.LabelRevision]))
	for _, props := range d.nodes[model.LabelRevision] {
		ids = append(ids, toInt64(props[model.KeyRevision]))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// NodeCount returns the number of committed nodes with label.
func (d *MemoryDriver) NodeCount(label string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes[label])
}

// Node returns a copy of the committed node's properties.
func (d *MemoryDriver) Node(label string, key interface{}) (map[string]interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	props, ok := d.nodes[label][keyString(key)]
	if !ok {
		return nil, false
	}
	return copyProps(props), true
}

// Relationships returns the committed relationships of relType in creation
// order.
func (d *MemoryDriver) Relationships(relType string) []Relationship {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Relationship
	for _, r := range d.rels {
		if r.Type == relType {
			out = append(out, r)
		}
	}
	return out
}

func (d *MemoryDriver) lookup(ref NodeRef) (map[string]interface{}, bool) {
	props, ok := d.nodes[ref.Label][keyString(ref.Value)]
	return props, ok
}

type pendingNode struct {
	props map[string]interface{}
	merge bool
}

type pendingUpdate struct {
	ref   NodeRef
	props map[string]interface{}
}

type memTx struct {
	d       *MemoryDriver
	pending map[string]map[string]*pendingNode
	order   []NodeRef
	updates []pendingUpdate
	rels    []Relationship
	done    bool
}

func (tx *memTx) keyFor(label string) (string, error) {
	tx.d.mu.RLock()
	defer tx.d.mu.RUnlock()
	key, ok := tx.d.keys[label]
	if !ok {
		return "", fmt.Errorf("no unique key declared for label %s", label)
	}
	return key, nil
}

func (tx *memTx) exists(ref NodeRef) bool {
	if _, ok := tx.pending[ref.Label][keyString(ref.Value)]; ok {
		return true
	}
	tx.d.mu.RLock()
	defer tx.d.mu.RUnlock()
	_, ok := tx.d.lookup(ref)
	return ok
}

func (tx *memTx) stage(ref NodeRef, props map[string]interface{}, merge bool) {
	if tx.pending[ref.Label] == nil {
		tx.pending[ref.Label] = make(map[string]*pendingNode)
	}
	tx.pending[ref.Label][keyString(ref.Value)] = &pendingNode{props: copyProps(props), merge: merge}
	tx.order = append(tx.order, ref)
}

func (tx *memTx) CreateNode(ctx context.Context, label string, props map[string]interface{}) (NodeRef, error) {
	if tx.done {
		return NodeRef{}, ErrTxDone
	}
	key, err := tx.keyFor(label)
	if err != nil {
		return NodeRef{}, err
	}
	value, ok := props[key]
	if !ok {
		return NodeRef{}, fmt.Errorf("create %s: missing key property %s", label, key)
	}
	ref := NodeRef{Label: label, Key: key, Value: value}
	if tx.exists(ref) {
		return NodeRef{}, fmt.Errorf("create %s: %w", ref, ErrKeyConflict)
	}
	tx.stage(ref, props, false)
	return ref, nil
}

func (tx *memTx) MergeNode(ctx context.Context, label, key string, props map[string]interface{}) (NodeRef, error) {
	if tx.done {
		return NodeRef{}, ErrTxDone
	}
	value, ok := props[key]
	if !ok {
		return NodeRef{}, fmt.Errorf("merge %s: missing key property %s", label, key)
	}
	ref := NodeRef{Label: label, Key: key, Value: value}
	if !tx.exists(ref) {
		tx.stage(ref, props, true)
	}
	return ref, nil
}

func (tx *memTx) UpdateNode(ctx context.Context, ref NodeRef, props map[string]interface{}) (bool, error) {
	if tx.done {
		return false, ErrTxDone
	}
	if p, ok := tx.pending[ref.Label][keyString(ref.Value)]; ok {
		for k, v := range props {
			p.props[k] = v
		}
		return true, nil
	}
	if !tx.exists(ref) {
		return false, nil
	}
	tx.updates = append(tx.updates, pendingUpdate{ref: ref, props: copyProps(props)})
	return true, nil
}

func (tx *memTx) CreateRelationship(ctx context.Context, from NodeRef, relType string, to NodeRef) error {
	if tx.done {
		return ErrTxDone
	}
	if err := checkIdentifiers(relType); err != nil {
		return err
	}
	if !tx.exists(from) {
		return fmt.Errorf("create %s: start node %s: %w", relType, from, ErrNotFound)
	}
	if !tx.exists(to) {
		return fmt.Errorf("create %s: end node %s: %w", relType, to, ErrNotFound)
	}
	tx.rels = append(tx.rels, Relationship{From: from, Type: relType, To: to})
	return nil
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true

	d := tx.d
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ref := range tx.order {
		p := tx.pending[ref.Label][keyString(ref.Value)]
		if _, taken := d.lookup(ref); taken && !p.merge {
			return fmt.Errorf("commit %s: %w", ref, ErrKeyConflict)
		}
	}
	for _, ref := range tx.order {
		if _, taken := d.lookup(ref); taken {
			continue
		}
		if d.nodes[ref.Label] == nil {
			d.nodes[ref.Label] = make(map[string]map[string]interface{})
		}
		d.nodes[ref.Label][keyString(ref.Value)] = tx.pending[ref.Label][keyString(ref.Value)].props
	}
	for _, u := range tx.updates {
		if props, ok := d.lookup(u.ref); ok {
			for k, v := range u.props {
				props[k] = v
			}
		}
	}
	d.rels = append(d.rels, tx.rels...)
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	tx.done = true
	return nil
}

func sameNode(a, b NodeRef) bool {
	return a.Label == b.Label && keyString(a.Value) == keyString(b.Value)
}

func keyString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func copyProps(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
