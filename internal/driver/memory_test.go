package driver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoapps/evotrees/internal/config"
)

func newKeyedMemory(t *testing.T) *MemoryDriver {
	t.Helper()
	d := NewMemoryDriver()
	ctx := context.Background()
	require.NoError(t, d.EnsureUniqueKey(ctx, "Document", "title"))
	require.NoError(t, d.EnsureUniqueKey(ctx, "Revision", "revision_id"))
	require.NoError(t, d.EnsureUniqueKey(ctx, "Content", "hash"))
	return d
}

func TestMemory_EnsureUniqueKey(t *testing.T) {
	d := NewMemoryDriver()
	ctx := context.Background()

	require.NoError(t, d.EnsureUniqueKey(ctx, "Revision", "revision_id"))
	assert.NoError(t, d.EnsureUniqueKey(ctx, "Revision", "revision_id"), "idempotent")
	assert.Error(t, d.EnsureUniqueKey(ctx, "Revision", "other"))
	assert.Error(t, d.EnsureUniqueKey(ctx, "Bad Label", "x"))
}

func TestMemory_CreateNodeConflict(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	ref, err := tx.CreateNode(ctx, "Revision", map[string]interface{}{"revision_id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.Value)

	_, err = tx.CreateNode(ctx, "Revision", map[string]interface{}{"revision_id": int64(1)})
	assert.ErrorIs(t, err, ErrKeyConflict, "conflict within the transaction")
	require.NoError(t, tx.Commit(ctx))

	tx, err = d.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.CreateNode(ctx, "Revision", map[string]interface{}{"revision_id": int64(1)})
	assert.ErrorIs(t, err, ErrKeyConflict, "conflict with committed node")
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, 1, d.NodeCount("Revision"))
}

func TestMemory_CreateNodeRequiresKey(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()
	tx, err := d.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.CreateNode(ctx, "Unknown", map[string]interface{}{"x": 1})
	assert.Error(t, err)
	_, err = tx.CreateNode(ctx, "Revision", map[string]interface{}{"timestamp": "x"})
	assert.Error(t, err)
}

func TestMemory_CommitConflictBetweenTransactions(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	a, _ := d.Begin(ctx)
	b, _ := d.Begin(ctx)
	_, err := a.CreateNode(ctx, "Document", map[string]interface{}{"title": "T"})
	require.NoError(t, err)
	_, err = b.CreateNode(ctx, "Document", map[string]interface{}{"title": "T"})
	require.NoError(t, err)

	require.NoError(t, a.Commit(ctx))
	assert.ErrorIs(t, b.Commit(ctx), ErrKeyConflict)
	assert.Equal(t, 1, d.NodeCount("Document"))
}

func TestMemory_MergeReusesExisting(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	tx, _ := d.Begin(ctx)
	_, err := tx.MergeNode(ctx, "Content", "hash", map[string]interface{}{"hash": "h", "raw_text": "first"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx, _ = d.Begin(ctx)
	ref, err := tx.MergeNode(ctx, "Content", "hash", map[string]interface{}{"hash": "h", "raw_text": "second"})
	require.NoError(t, err)
	assert.Equal(t, "h", ref.Value)
	require.NoError(t, tx.Commit(ctx))

	props, ok := d.Node("Content", "h")
	require.True(t, ok)
	assert.Equal(t, "first", props["raw_text"])
	assert.Equal(t, 1, d.NodeCount("Content"))
}

func TestMemory_RollbackDiscards(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	tx, _ := d.Begin(ctx)
	from, _ := tx.CreateNode(ctx, "Document", map[string]interface{}{"title": "T"})
	to, _ := tx.CreateNode(ctx, "Revision", map[string]interface{}{"revision_id": int64(1)})
	require.NoError(t, tx.CreateRelationship(ctx, from, "CONTAINS", to))
	require.NoError(t, tx.Rollback(ctx))

	assert.Zero(t, d.NodeCount("Document"))
	assert.Empty(t, d.Relationships("CONTAINS"))

	_, err := tx.CreateNode(ctx, "Document", map[string]interface{}{"title": "U"})
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
}

func TestMemory_UpdateNodeNeverCreates(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	tx, _ := d.Begin(ctx)
	ref, _ := tx.CreateNode(ctx, "Revision", map[string]interface{}{"revision_id": int64(42)})
	require.NoError(t, tx.Commit(ctx))

	tx, _ = d.Begin(ctx)
	found, err := tx.UpdateNode(ctx, ref, map[string]interface{}{"quality": 7.5})
	require.NoError(t, err)
	assert.True(t, found)
	found, err = tx.UpdateNode(ctx, NodeRef{Label: "Revision", Key: "revision_id", Value: int64(99)}, map[string]interface{}{"quality": 1.0})
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, tx.Commit(ctx))

	props, _ := d.Node("Revision", int64(42))
	assert.Equal(t, 7.5, props["quality"])
	assert.Equal(t, 1, d.NodeCount("Revision"))
}

func TestMemory_RelationshipNeedsEndpoints(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	tx, _ := d.Begin(ctx)
	from, _ := tx.CreateNode(ctx, "Document", map[string]interface{}{"title": "T"})
	missing := NodeRef{Label: "Revision", Key: "revision_id", Value: int64(5)}

	assert.ErrorIs(t, tx.CreateRelationship(ctx, from, "CONTAINS", missing), ErrNotFound)
	assert.Error(t, tx.CreateRelationship(ctx, from, "NOT-VALID", from))
}

func TestMemory_DocumentHistory(t *testing.T) {
	d := newKeyedMemory(t)
	ctx := context.Background()

	_, err := d.DocumentHistory(ctx, "T")
	assert.ErrorIs(t, err, ErrNotFound)

	tx, _ := d.Begin(ctx)
	doc, _ := tx.CreateNode(ctx, "Document", map[string]interface{}{"title": "T"})
	require.NoError(t, tx.Commit(ctx))

	h, err := d.DocumentHistory(ctx, "T")
	require.NoError(t, err)
	assert.Zero(t, h.Revisions)

	steps := []struct {
		id   int64
		hash string
	}{{3, "b"}, {1, "a"}, {2, "b"}, {4, "a"}}
	for _, s := range steps {
		tx, _ := d.Begin(ctx)
		rev, err := tx.CreateNode(ctx, "Revision", map[string]interface{}{
			"revision_id": s.id,
			"timestamp":   fmt.Sprintf("2021-05-%02dT00:00:00Z", s.id),
		})
		require.NoError(t, err)
		c, _ := tx.MergeNode(ctx, "Content", "hash", map[string]interface{}{"hash": s.hash})
		require.NoError(t, tx.CreateRelationship(ctx, doc, "CONTAINS", rev))
		require.NoError(t, tx.CreateRelationship(ctx, rev, "CHANGED_TO", c))
		require.NoError(t, tx.Commit(ctx))
	}

	h, err = d.DocumentHistory(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, 4, h.Revisions)
	assert.Equal(t, int64(4), h.LastRevisionID)
	assert.Equal(t, 4, h.LastTimestamp.Day())
	assert.Equal(t, []string{"a", "b"}, h.ContentHashes)

	ids, err := d.RevisionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	require.NoError(t, d.Purge(ctx))
	assert.Zero(t, d.NodeCount("Revision"))
	assert.Empty(t, d.Relationships("CONTAINS"))
}

func TestCheckIdentifiers(t *testing.T) {
	assert.NoError(t, checkIdentifiers("Revision", "revision_id", "PARENT_OF"))
	assert.Error(t, checkIdentifiers("Revision) DETACH DELETE (n"))
	assert.Error(t, checkIdentifiers(""))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(errorString("Unable to commit due to unique constraint violation on :Revision(revision_id)")), ErrKeyConflict)
	plain := errorString("syntax error")
	assert.Equal(t, plain, classify(plain))
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestOpen_Memory(t *testing.T) {
	d, err := Open(context.Background(), config.GraphConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryDriver{}, d)

	_, err = Open(context.Background(), config.GraphConfig{Backend: "rdf"}, nil)
	assert.Error(t, err)
}
