package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct{ pgx.Tx }

func TestConnFromContext_Empty(t *testing.T) {
	if conn := ConnFromContext(context.Background()); conn != nil {
		t.Error("expected nil conn from empty context")
	}
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestWithTx_ReusesOuterTransaction(t *testing.T) {
	// A context already carrying a transaction must not begin a new one, so a
	// nil pool is never touched.
	ctx := context.WithValue(context.Background(), txKey, fakeTx{})
	called := false
	err := WithTx(ctx, nil, func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) == nil {
			t.Error("expected tx in nested context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}
}

func TestExecutor_PrefersTx(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, fakeTx{})
	if _, ok := Executor(ctx, nil).(fakeTx); !ok {
		t.Error("expected executor to return the context transaction")
	}
}
