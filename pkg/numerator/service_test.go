package numerator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the sys_sequences upsert: every call bumps the
// stored value by the requested increment and returns the new value.
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("PB")
	year := time.Now().Format("2006")

	num, err := svc.GetNextNumber(ctx, cfg, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("PB-%s-00001", year), num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("PB-%s-00002", year), num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("ADJ")
	year := time.Now().Format("2006")

	opts := &Options{
		Strategy:  StrategyCached,
		RangeSize: 10,
	}

	// First call allocates the range 1..10; DB value jumps to 10.
	num, err := svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ADJ-%s-00001", year), num)
	require.EqualValues(t, 10, q.currentValue)

	// Second call comes from memory; DB untouched.
	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ADJ-%s-00002", year), num)
	require.EqualValues(t, 10, q.currentValue)

	// Exhaust the range; the next call reserves 11..20.
	for i := 0; i < 8; i++ {
		_, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
		require.NoError(t, err)
	}
	num, err = svc.GetNextNumber(ctx, cfg, opts, time.Now())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("ADJ-%s-00011", year), num)
	require.EqualValues(t, 20, q.currentValue)
}

func TestParseNumber(t *testing.T) {
	require.EqualValues(t, 42, ParseNumber("PB-2025-00042"))
	require.EqualValues(t, 7, ParseNumber("PB-00007"))
	require.EqualValues(t, -1, ParseNumber("garbage"))
}

func TestSequence_Next(t *testing.T) {
	q := &mockQuerier{}
	seq := NewSequence(New(q), DefaultConfig("PB"))
	year := time.Now().Format("2006")

	num, err := seq.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("PB-%s-00001", year), num)
}
