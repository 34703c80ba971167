package basic

import (
	"context"
	"database/sql"
	"fmt"

	core "colorm/data/db"
	"colorm/data/db/dialect"
)

// Tx 委托给 *sql.Tx 的事务，同时实现 core.IDatabase，存储层可以把它当作普通连接使用。
//
// 在事务上再次 Begin 得到以 SAVEPOINT 划界的子事务：子事务提交即 RELEASE，
// 回滚只撤销保存点之后的写入，外层事务不受影响。sqlite 与 postgres 都支持保存点。
type Tx struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect

	depth     int
	savepoint string // 为空表示最外层事务
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// Begin 开启保存点子事务
func (t *Tx) Begin(ctx context.Context) (core.ITransaction, error) {
	return t.BeginTx(ctx, nil)
}

// BeginTx 隔离级别与只读属性由最外层事务决定，子事务不能更改
func (t *Tx) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	if opts != nil && (opts.Isolation != sql.LevelDefault || opts.ReadOnly) {
		return nil, fmt.Errorf("basic.Tx: savepoint cannot change isolation or read-only mode")
	}
	name := fmt.Sprintf("colorm_sp_%d", t.depth+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("basic.Tx: savepoint %s: %w", name, err)
	}
	return &Tx{db: t.db, tx: t.tx, dialect: t.dialect, depth: t.depth + 1, savepoint: name}, nil
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }

// Commit 最外层提交事务，子事务释放保存点
func (t *Tx) Commit() error {
	if t.savepoint == "" {
		return t.tx.Commit()
	}
	_, err := t.tx.Exec("RELEASE SAVEPOINT " + t.savepoint)
	return err
}

// Rollback 最外层回滚事务，子事务回到保存点并释放它
func (t *Tx) Rollback() error {
	if t.savepoint == "" {
		return t.tx.Rollback()
	}
	if _, err := t.tx.Exec("ROLLBACK TO SAVEPOINT " + t.savepoint); err != nil {
		return err
	}
	_, err := t.tx.Exec("RELEASE SAVEPOINT " + t.savepoint)
	return err
}

// GetDialectName 实现 core.IDialectNameProvider，事务内构建的语句沿用同一方言。
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
