package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is the minimal driver.Conn + driver.Pinger needed to exercise
// Pool.Borrow's ping-on-borrow contract without a real database.
type fakeConn struct{}

// fakePings counts driver-level pings across every fakeConn.
var fakePings int64

func (fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (fakeConn) Close() error                               { return nil }
func (fakeConn) Begin() (driver.Tx, error)                   { return nil, driver.ErrSkip }
func (fakeConn) Ping(ctx context.Context) error              { atomic.AddInt64(&fakePings, 1); return nil }

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) { return fakeConn{}, nil }

var registerFakeDriverOnce sync.Once

func openFakeDB(t *testing.T) *sql.DB {
	t.Helper()
	registerFakeDriverOnce.Do(func() {
		sql.Register("storage-fake", fakeDriver{})
	})
	db, err := sql.Open("storage-fake", "irrelevant")
	require.NoError(t, err)
	return db
}

func TestNewPoolAppliesDefaults(t *testing.T) {
	db := openFakeDB(t)
	defer db.Close()

	p := NewPool(db, PoolConfig{})
	assert.Equal(t, int64(0), p.maxUsagePerConn)
	assert.Equal(t, 30*time.Minute, p.maxConnLifetime)
	assert.Equal(t, 20, db.Stats().MaxOpenConnections)
	assert.NotNil(t, p.db)
}

func TestBorrowPingsOnCheckout(t *testing.T) {
	db := openFakeDB(t)
	defer db.Close()

	p := NewPool(db, PoolConfig{MaxOpenConns: 5, MaxConnLifetime: time.Minute})
	before := atomic.LoadInt64(&fakePings)
	got, err := p.Borrow(context.Background())
	require.NoError(t, err)
	assert.Same(t, db, got)
	assert.Greater(t, atomic.LoadInt64(&fakePings), before)
}

func TestBorrowRecyclesAfterMaxUsage(t *testing.T) {
	db := openFakeDB(t)
	defer db.Close()

	p := NewPool(db, PoolConfig{MaxUsagePerConn: 3})
	for i := 0; i < 2; i++ {
		_, err := p.Borrow(context.Background())
		require.NoError(t, err)
	}
	before := p.usageCounter
	_, err := p.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, p.usageCounter)
	assert.Equal(t, int64(0), p.usageCounter%int64(3))
}

func TestClosePropagatesToUnderlyingDB(t *testing.T) {
	db := openFakeDB(t)
	p := NewPool(db, PoolConfig{})
	assert.NoError(t, p.Close())
}
