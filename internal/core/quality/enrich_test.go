package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoapps/evotrees/internal/core/model"
	"github.com/evoapps/evotrees/internal/driver"
)

func seed(t *testing.T, ids ...int64) *driver.MemoryDriver {
	t.Helper()
	ctx := context.Background()
	d := driver.NewMemoryDriver()
	require.NoError(t, d.EnsureUniqueKey(ctx, model.LabelRevision, model.KeyRevision))

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		_, err := tx.CreateNode(ctx, model.LabelRevision, model.Revision{ID: id}.Properties())
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
	return d
}

func newEnricher(d driver.GraphDriver, batch int) *Enricher {
	logger, _ := test.NewNullLogger()
	return NewEnricher(d, logger, batch)
}

func TestApply_SetsQuality(t *testing.T) {
	d := seed(t, 42)

	report, err := newEnricher(d, 10).Apply(context.Background(), map[int64]float64{42: 7.5})

	require.NoError(t, err)
	assert.Equal(t, Report{Applied: 1}, report)
	props, ok := d.Node(model.LabelRevision, int64(42))
	require.True(t, ok)
	assert.Equal(t, 7.5, props["quality"])
}

func TestApply_UnknownIDCreatesNothing(t *testing.T) {
	d := seed(t, 42)

	report, err := newEnricher(d, 10).Apply(context.Background(), map[int64]float64{99: 1.0})

	require.NoError(t, err)
	assert.Equal(t, Report{Missing: 1}, report)
	assert.Equal(t, 1, d.NodeCount(model.LabelRevision))
	_, ok := d.Node(model.LabelRevision, int64(99))
	assert.False(t, ok)
}

func TestApply_Batches(t *testing.T) {
	d := seed(t, 1, 2, 3, 4, 5)
	scores := map[int64]float64{1: 0.1, 2: 0.2, 3: 0.3, 5: 0.5, 6: 0.6}

	report, err := newEnricher(d, 2).Apply(context.Background(), scores)

	require.NoError(t, err)
	assert.Equal(t, 4, report.Applied)
	assert.Equal(t, 1, report.Missing)
	props, _ := d.Node(model.LabelRevision, int64(4))
	assert.NotContains(t, props, "quality")
}

type failingDriver struct {
	*driver.MemoryDriver
}

func (f failingDriver) Begin(ctx context.Context) (driver.Tx, error) {
	return nil, errors.New("store down")
}

func TestApply_BeginFailure(t *testing.T) {
	d := failingDriver{seed(t, 1)}

	_, err := newEnricher(d, 10).Apply(context.Background(), map[int64]float64{1: 0.5})
	assert.ErrorContains(t, err, "store down")
}

func TestRun_OnlyAsksForGraphIDs(t *testing.T) {
	d := seed(t, 10, 20)
	src := &recordingSource{StaticSource: StaticSource{10: 3.0, 30: 9.0}}

	report, err := newEnricher(d, 10).Run(context.Background(), src)

	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, src.asked)
	assert.Equal(t, Report{Applied: 1}, report)
}

func TestRun_EmptyGraph(t *testing.T) {
	d := driver.NewMemoryDriver()
	src := &recordingSource{StaticSource: StaticSource{1: 1}}

	report, err := newEnricher(d, 10).Run(context.Background(), src)

	require.NoError(t, err)
	assert.Zero(t, report)
	assert.Nil(t, src.asked)
}

type recordingSource struct {
	StaticSource
	asked []int64
}

func (r *recordingSource) Scores(ctx context.Context, ids []int64) (map[int64]float64, error) {
	r.asked = ids
	return r.StaticSource.Scores(ctx, ids)
}
