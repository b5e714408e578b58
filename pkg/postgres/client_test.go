package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConnector hands out connections whose transactions commit or roll
// back with fixed results.
type stubConnector struct {
	rollbackErr error
	commits     int
	rollbacks   int
}

func (s *stubConnector) Connect(context.Context) (driver.Conn, error) { return &stubConn{s}, nil }
func (s *stubConnector) Driver() driver.Driver                      { return stubDriver{s} }

type stubDriver struct{ s *stubConnector }

func (d stubDriver) Open(string) (driver.Conn, error) { return &stubConn{d.s}, nil }

type stubConn struct{ s *stubConnector }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{c.s}, nil }

type stubTx struct{ s *stubConnector }

func (t stubTx) Commit() error {
	t.s.commits++
	return nil
}

func (t stubTx) Rollback() error {
	t.s.rollbacks++
	return t.s.rollbackErr
}

func newStubClient(t *testing.T, rollbackErr error) (*Client, *stubConnector) {
	t.Helper()
	conn := &stubConnector{rollbackErr: rollbackErr}
	db := sql.OpenDB(conn)
	t.Cleanup(func() { db.Close() })
	return &Client{DB: db}, conn
}

func TestInTx_Commits(t *testing.T) {
	c, conn := newStubClient(t, nil)
	require.NoError(t, c.InTx(context.Background(), func(*sql.Tx) error { return nil }))
	assert.Equal(t, 1, conn.commits)
	assert.Equal(t, 0, conn.rollbacks)
}

func TestInTx_ReturnsCallbackError(t *testing.T) {
	errWrite := errors.New("insert snapshot")
	c, conn := newStubClient(t, nil)

	err := c.InTx(context.Background(), func(*sql.Tx) error { return errWrite })
	assert.Same(t, errWrite, err)
	assert.Equal(t, 1, conn.rollbacks)
}

func TestInTx_FailedRollbackKeepsCallbackError(t *testing.T) {
	errWrite := errors.New("insert snapshot")
	errRollback := errors.New("connection reset")
	c, _ := newStubClient(t, errRollback)

	err := c.InTx(context.Background(), func(*sql.Tx) error { return errWrite })
	require.Error(t, err)
	assert.ErrorIs(t, err, errWrite)
	assert.ErrorIs(t, err, errRollback)
	assert.Contains(t, err.Error(), "rollback failed")
}
