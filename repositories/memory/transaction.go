package memory

import (
	"context"

	"github.com/upb/authgate/repositories"
)

// TransactionManager satisfies repositories.TransactionManager for the
// in-memory store. Each repository call is already atomic, so commit and
// rollback have nothing to do.
type TransactionManager struct{}

// Begin returns a transaction bound to ctx
func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return transaction{ctx: ctx}, nil
}

// InTransaction runs fn directly
func (m TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	return fn(ctx, tx)
}

type transaction struct {
	ctx context.Context
}

func (transaction) Commit() error              { return nil }
func (transaction) Rollback() error            { return nil }
func (t transaction) Context() context.Context { return t.ctx }
