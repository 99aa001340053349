package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	// Owner is true for the caller that began the transaction. Only the
	// owner's Commit and Rollback reach the database.
	Owner() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Callers that join an existing transaction get
// a non-owning handle whose Commit and Rollback are no-ops.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	root   *Transaction
	closed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

func txFromContext(ctx context.Context) *Transaction {
	tx, _ := ctx.Value(txKey).(*Transaction)
	return tx
}

// GetTx joins the transaction carried by ctx or begins a new one and stores
// it in the returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if current := txFromContext(ctx); current != nil && current.IsOpen() {
		return ctx, &Transaction{Tx: current.Tx, logger: logger, root: current.owner()}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

func (t *Transaction) owner() *Transaction {
	if t.root != nil {
		return t.root
	}
	return t
}

func (t *Transaction) Owner() bool {
	return t.root == nil
}

func (t *Transaction) IsOpen() bool {
	return !t.owner().closed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.Owner() || t.closed {
		return nil
	}

	t.closed = true
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.Owner() || t.closed {
		return nil
	}

	t.closed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	return nil
}

// InTx runs fn inside the transaction carried by ctx, or inside a new one
// that is committed when fn succeeds and rolled back when it fails.
func InTx(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	ctx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// Transactor exposes InTx for callers that hold only an interface.
type Transactor struct {
	db DB
}

func NewTransactor(db DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return InTx(ctx, t.db, fn)
}
