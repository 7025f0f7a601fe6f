package core

import (
	"context"

	"github.com/evoapps/evotrees/internal/driver"
)

// FaultyDriver wraps the in-memory graph and injects store failures.
type FaultyDriver struct {
	*driver.MemoryDriver

	// FailCommitAt fails the n-th commit (1-based) with CommitErr.
	FailCommitAt int
	CommitErr    error
	BeginErr     error

	commits int
}

func NewFaultyDriver() *FaultyDriver {
	return &FaultyDriver{MemoryDriver: driver.NewMemoryDriver()}
}

func (f *FaultyDriver) Begin(ctx context.Context) (driver.Tx, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	tx, err := f.MemoryDriver.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, d: f}, nil
}

type faultyTx struct {
	driver.Tx
	d *FaultyDriver
}

func (t *faultyTx) Commit(ctx context.Context) error {
	t.d.commits++
	if t.d.FailCommitAt > 0 && t.d.commits == t.d.FailCommitAt {
		_ = t.Tx.Rollback(ctx)
		return t.d.CommitErr
	}
	return t.Tx.Commit(ctx)
}
