package basic

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/config"
	core "colorm/data/db"
	"colorm/data/db/dialect"
)

func count(t *testing.T, d core.IDatabase) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow(context.Background(), "SELECT COUNT(*) FROM t").Scan(&n))
	return n
}

// TestDB_WithTx 成功提交，失败回滚
func TestDB_WithTx(t *testing.T) {
	d, err := OpenMemory()
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	_, err = d.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	require.NoError(t, core.WithTx(ctx, d, func(tx core.ITransaction) error {
		_, err := tx.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 1)
		return err
	}))
	assert.Equal(t, 1, count(t, d))

	boom := errors.New("boom")
	err = core.WithTx(ctx, d, func(tx core.ITransaction) error {
		if _, err := tx.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 2); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count(t, d))
}

// TestDB_Dialect 事务与子事务沿用连接的方言
func TestDB_Dialect(t *testing.T) {
	d, err := OpenMemory()
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, dialect.NameSQLite, dialect.FromDatabase(d).Name())
	tx, err := d.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	assert.Equal(t, dialect.NameSQLite, dialect.FromDatabase(tx).Name())

	sp, err := tx.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dialect.NameSQLite, dialect.FromDatabase(sp).Name())
	require.NoError(t, sp.Commit())

	_, err = tx.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	assert.Error(t, err)
}

// TestTx_Savepoint 子事务回滚只撤销保存点之后的写入
func TestTx_Savepoint(t *testing.T) {
	d, err := OpenMemory()
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()
	_, err = d.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	boom := errors.New("boom")
	require.NoError(t, core.WithTx(ctx, d, func(tx core.ITransaction) error {
		if _, err := tx.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 1); err != nil {
			return err
		}
		err := core.WithTx(ctx, tx, func(inner core.ITransaction) error {
			if _, err := inner.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 2); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		return core.WithTx(ctx, tx, func(inner core.ITransaction) error {
			_, err := inner.Exec(ctx, "INSERT INTO t (id) VALUES (?)", 3)
			return err
		})
	}))

	var ids []int
	rows, err := d.Query(ctx, "SELECT id FROM t ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []int{1, 3}, ids)
}

// TestOpen_Errors 空 DSN 与未注册驱动
func TestOpen_Errors(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: DriverSQLite})
	assert.Error(t, err)
	_, err = Open(config.DatabaseConfig{Driver: "nope", DSN: "x"})
	assert.Error(t, err)
}
