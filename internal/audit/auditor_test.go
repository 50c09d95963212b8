package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *bool:
			*p = r.vals[i].(bool)
		case *int:
			*p = r.vals[i].(int)
		}
	}
	return nil
}

type fakeDB struct {
	noOrder  bool
	reserved bool
	held     int
}

func (f fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if strings.Contains(sql, "FROM orders") {
		if f.noOrder {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{f.reserved}}
	}
	return fakeRow{vals: []any{f.held}}
}

func TestCheckOrderConsistent(t *testing.T) {
	ctx := context.Background()

	fault, err := (&Auditor{DB: fakeDB{reserved: true, held: 2}}).CheckOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, fault)

	fault, err = (&Auditor{DB: fakeDB{reserved: false, held: 0}}).CheckOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, fault)
}

func TestCheckOrderReservedButNothingHeld(t *testing.T) {
	fault, err := (&Auditor{DB: fakeDB{reserved: true, held: 0}}).CheckOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, fault)
	assert.Equal(t, "o1", fault.OrderID)
	assert.Contains(t, fault.String(), "holds nothing")
}

func TestCheckOrderReleasedButStillHeld(t *testing.T) {
	fault, err := (&Auditor{DB: fakeDB{reserved: false, held: 3}}).CheckOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, fault)
	assert.Contains(t, fault.String(), "still holds 3 rows")
}

func TestCheckOrderMissingOrder(t *testing.T) {
	ctx := context.Background()

	fault, err := (&Auditor{DB: fakeDB{noOrder: true, held: 2}}).CheckOrder(ctx, "ghost")
	require.NoError(t, err)
	require.NotNil(t, fault)
	assert.Contains(t, fault.String(), "order row missing")

	fault, err = (&Auditor{DB: fakeDB{noOrder: true, held: 0}}).CheckOrder(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, fault)
}
