package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
)

// Dialect selects the DDL flavour of a Bolt backend.
type Dialect string

const (
	DialectMemgraph Dialect = "memgraph"
	DialectNeo4j    Dialect = "neo4j"
)

// MemgraphDriver talks Bolt to Memgraph or Neo4j.
type MemgraphDriver struct {
	Driver   neo4j.DriverWithContext
	Dialect  Dialect
	Database string
	Logger   logrus.FieldLogger

	mu   sync.RWMutex
	keys map[string]string
}

func NewMemgraphDriver(ctx context.Context, uri, username, password string, dialect Dialect, logger logrus.FieldLogger) (*MemgraphDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if dialect == "" {
		dialect = DialectMemgraph
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{"uri": uri, "dialect": dialect}).Info("Connected to graph store")
	return &MemgraphDriver{
		Driver:  driver,
		Dialect: dialect,
		Logger:  logger,
		keys:    make(map[string]string),
	}, nil
}

func (d *MemgraphDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *MemgraphDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if d.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", classify(err))
	}
	return *result, nil
}

func (d *MemgraphDriver) EnsureUniqueKey(ctx context.Context, label, property string) error {
	if err := checkIdentifiers(label, property); err != nil {
		return err
	}

	tmpl := memgraphUniqueConstraintQuery
	if d.Dialect == DialectNeo4j {
		tmpl = neo4jUniqueConstraintQuery
	}
	q := fmt.Sprintf(tmpl, label, property)
	if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		// Memgraph has no IF NOT EXISTS and rejects a repeated constraint.
		d.Logger.WithError(err).WithField("query", q).Warn("failed to create constraint")
	}

	d.mu.Lock()
	d.keys[label] = property
	d.mu.Unlock()
	return nil
}

func (d *MemgraphDriver) keyFor(label string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.keys[label]
	if !ok {
		return "", fmt.Errorf("no unique key declared for label %s", label)
	}
	return key, nil
}

func (d *MemgraphDriver) Begin(ctx context.Context) (Tx, error) {
	session := d.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: d.Database,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	return &boltTx{d: d, session: session, tx: tx}, nil
}

func (d *MemgraphDriver) DocumentHistory(ctx context.Context, title string) (History, error) {
	params := map[string]interface{}{"title": title}

	found, err := d.ExecuteQuery(ctx, DocumentExistsQuery, params)
	if err != nil {
		return History{}, err
	}
	if len(found.Records) == 0 || asInt64(found.Records[0], "found") == 0 {
		return History{}, fmt.Errorf("document %q: %w", title, ErrNotFound)
	}

	res, err := d.ExecuteQuery(ctx, DocumentHistoryQuery, params)
	if err != nil {
		return History{}, err
	}

	h := History{Revisions: len(res.Records)}
	seen := make(map[string]bool)
	for _, rec := range res.Records {
		if hash, ok := asString(rec, "hash"); ok && !seen[hash] {
			seen[hash] = true
			h.ContentHashes = append(h.ContentHashes, hash)
		}
	}
	if n := len(res.Records); n > 0 {
		last := res.Records[n-1]
		h.LastRevisionID = asInt64(last, "revision_id")
		if ts, ok := asString(last, "timestamp"); ok {
			h.LastTimestamp, _ = time.Parse(time.RFC3339, ts)
		}
	}
	return h, nil
}

func (d *MemgraphDriver) RevisionIDs(ctx context.Context) ([]int64, error) {
	res, err := d.ExecuteQuery(ctx, RevisionIDsQuery, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(res.Records))
	for _, rec := range res.Records {
		ids = append(ids, asInt64(rec, "revision_id"))
	}
	return ids, nil
}

func (d *MemgraphDriver) Purge(ctx context.Context) error {
	_, err := d.ExecuteQuery(ctx, PurgeQuery, nil)
	return err
}

type boltTx struct {
	d       *MemgraphDriver
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

func (t *boltTx) run(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	if t.done {
		return nil, ErrTxDone
	}
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, classify(err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return records, nil
}

func (t *boltTx) CreateNode(ctx context.Context, label string, props map[string]interface{}) (NodeRef, error) {
	key, err := t.d.keyFor(label)
	if err != nil {
		return NodeRef{}, err
	}
	value, ok := props[key]
	if !ok {
		return NodeRef{}, fmt.Errorf("create %s: missing key property %s", label, key)
	}
	ref := NodeRef{Label: label, Key: key, Value: value}

	records, err := t.run(ctx, fmt.Sprintf(CreateNodeQuery, label, key), map[string]interface{}{
		"key":   value,
		"props": props,
	})
	if err != nil {
		return NodeRef{}, fmt.Errorf("create %s: %w", ref, err)
	}
	if len(records) == 0 {
		return NodeRef{}, fmt.Errorf("create %s: %w", ref, ErrKeyConflict)
	}
	return ref, nil
}

func (t *boltTx) MergeNode(ctx context.Context, label, key string, props map[string]interface{}) (NodeRef, error) {
	if err := checkIdentifiers(label, key); err != nil {
		return NodeRef{}, err
	}
	value, ok := props[key]
	if !ok {
		return NodeRef{}, fmt.Errorf("merge %s: missing key property %s", label, key)
	}
	ref := NodeRef{Label: label, Key: key, Value: value}

	if _, err := t.run(ctx, fmt.Sprintf(MergeNodeQuery, label, key), map[string]interface{}{
		"key":   value,
		"props": props,
	}); err != nil {
		return NodeRef{}, fmt.Errorf("merge %s: %w", ref, err)
	}
	return ref, nil
}

func (t *boltTx) UpdateNode(ctx context.Context, ref NodeRef, props map[string]interface{}) (bool, error) {
	if err := checkIdentifiers(ref.Label, ref.Key); err != nil {
		return false, err
	}
	records, err := t.run(ctx, fmt.Sprintf(UpdateNodeQuery, ref.Label, ref.Key), map[string]interface{}{
		"key":   ref.Value,
		"props": props,
	})
	if err != nil {
		return false, fmt.Errorf("update %s: %w", ref, err)
	}
	return len(records) > 0 && asInt64(records[0], "matched") > 0, nil
}

func (t *boltTx) CreateRelationship(ctx context.Context, from NodeRef, relType string, to NodeRef) error {
	if err := checkIdentifiers(from.Label, from.Key, relType, to.Label, to.Key); err != nil {
		return err
	}
	q := fmt.Sprintf(CreateRelationshipQuery, from.Label, from.Key, to.Label, to.Key, relType)
	records, err := t.run(ctx, q, map[string]interface{}{
		"from": from.Value,
		"to":   to.Value,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", relType, err)
	}
	if len(records) == 0 || asInt64(records[0], "created") == 0 {
		return fmt.Errorf("create %s from %s to %s: %w", relType, from, to, ErrNotFound)
	}
	return nil
}

func (t *boltTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.session.Close(ctx)
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	return nil
}

func (t *boltTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to roll back: %w", classify(err))
	}
	return nil
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) && isConstraintViolation(nerr.Code, nerr.Msg) {
		return fmt.Errorf("%w: %s", ErrKeyConflict, nerr.Msg)
	}
	// Memgraph reports constraint violations without a Neo4j status code.
	if isConstraintViolation("", err.Error()) {
		return fmt.Errorf("%w: %w", ErrKeyConflict, err)
	}
	return err
}

func isConstraintViolation(code, msg string) bool {
	if strings.Contains(code, "ConstraintValidationFailed") {
		return true
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "already exists with label")
}

func asInt64(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok {
		return 0
	}
	return toInt64(v)
}

func asString(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
