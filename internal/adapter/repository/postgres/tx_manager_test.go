package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func TestTxManagerBegin(t *testing.T) {
	errSet := errors.New("permission denied")
	errBegin := errors.New("too many connections")

	tests := []struct {
		name        string
		lockTimeout time.Duration
		expect      func(pgxmock.PgxPoolIface)
		wantErr     error
	}{
		{
			name:        "sets lock timeout in milliseconds",
			lockTimeout: 1500 * time.Millisecond,
			expect: func(p pgxmock.PgxPoolIface) {
				p.ExpectBeginTx(readCommitted)
				p.ExpectExec("SET LOCAL lock_timeout = 1500").WillReturnResult(pgxmock.NewResult("SET", 0))
				p.ExpectCommit()
			},
		},
		{
			name: "zero timeout skips SET",
			expect: func(p pgxmock.PgxPoolIface) {
				p.ExpectBeginTx(readCommitted)
				p.ExpectCommit()
			},
		},
		{
			name:        "begin failure",
			lockTimeout: DefaultLockTimeout,
			expect: func(p pgxmock.PgxPoolIface) {
				p.ExpectBeginTx(readCommitted).WillReturnError(errBegin)
			},
			wantErr: errBegin,
		},
		{
			name:        "SET failure rolls back",
			lockTimeout: DefaultLockTimeout,
			expect: func(p pgxmock.PgxPoolIface) {
				p.ExpectBeginTx(readCommitted)
				p.ExpectExec("SET LOCAL lock_timeout").WillReturnError(errSet)
				p.ExpectRollback()
			},
			wantErr: errSet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := newMockPool(t)
			tt.expect(pool)

			tx, err := newTxManagerWithPool(pool, tt.lockTimeout).Begin(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tx)
			} else {
				require.NoError(t, err)
				require.NoError(t, tx.Commit(context.Background()))
			}
			assertExpectations(t, pool)
		})
	}
}

type closedTx struct {
	pgx.Tx
	err error
}

func (c closedTx) Rollback(context.Context) error { return c.err }

func TestTxRollbackAfterCommitIsNoop(t *testing.T) {
	assert.NoError(t, (&Tx{tx: closedTx{err: pgx.ErrTxClosed}}).Rollback(context.Background()))

	broken := errors.New("conn busy")
	assert.ErrorIs(t, (&Tx{tx: closedTx{err: broken}}).Rollback(context.Background()), broken)
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func assertExpectations(t *testing.T, pool pgxmock.PgxPoolIface) {
	t.Helper()
	require.NoError(t, pool.ExpectationsWereMet())
}
